package elevation_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cyclemaps/cyclemaps/internal/elevation"
)

func floatPtr(v float64) *float64 { return &v }

func TestSumPositiveGain(t *testing.T) {
	tests := []struct {
		name       string
		elevations []*float64
		want       float64
	}{
		{
			name:       "simple climb",
			elevations: []*float64{floatPtr(100), floatPtr(150), floatPtr(130)},
			want:       50,
		},
		{
			name:       "null start counts as zero",
			elevations: []*float64{nil, floatPtr(120), floatPtr(130)},
			want:       130,
		},
		{
			name:       "descent only",
			elevations: []*float64{floatPtr(300), floatPtr(200), floatPtr(100)},
			want:       0,
		},
		{
			name:       "all null",
			elevations: []*float64{nil, nil, nil},
			want:       0,
		},
		{
			name:       "NaN counts as zero",
			elevations: []*float64{floatPtr(math.NaN()), floatPtr(50)},
			want:       50,
		},
		{
			name:       "empty",
			elevations: nil,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, elevation.SumPositiveGain(tt.elevations))
		})
	}
}

func TestSamples_Gain(t *testing.T) {
	// Provider-reported gain wins over the derived sum
	s := &elevation.Samples{
		Elevations: []*float64{floatPtr(100), floatPtr(150)},
		GainMeters: floatPtr(42),
	}
	assert.Equal(t, 42.0, s.Gain())

	// Without a reported gain, positive deltas are summed
	s.GainMeters = nil
	assert.Equal(t, 50.0, s.Gain())

	// A NaN reported gain falls back to the sum
	s.GainMeters = floatPtr(math.NaN())
	assert.Equal(t, 50.0, s.Gain())
}
