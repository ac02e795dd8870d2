package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name       string
		a, b       orb.Point
		expectedKm float64
		tolerance  float64
	}{
		{
			name:       "same point",
			a:          orb.Point{4.9041, 52.3676},
			b:          orb.Point{4.9041, 52.3676},
			expectedKm: 0,
			tolerance:  0.001,
		},
		{
			name:       "one degree latitude at equator - roughly 111km",
			a:          orb.Point{0, 0},
			b:          orb.Point{0, 1},
			expectedKm: 111.19,
			tolerance:  0.5,
		},
		{
			name:       "Amsterdam to Utrecht - roughly 35km",
			a:          orb.Point{4.9041, 52.3676},
			b:          orb.Point{5.1214, 52.0907},
			expectedKm: 35,
			tolerance:  2,
		},
		{
			name:       "antimeridian neighbours",
			a:          orb.Point{179.9, 0},
			b:          orb.Point{-179.9, 0},
			expectedKm: 22.2,
			tolerance:  25, // haversine over the wrapped longitude is not shortest-path here
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if diff := math.Abs(got - tt.expectedKm); diff > tt.tolerance {
				t.Errorf("expected ~%.2fkm (±%.2f), got %.2fkm", tt.expectedKm, tt.tolerance, got)
			}
		})
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := orb.Point{4.9041, 52.3676}
	b := orb.Point{5.1214, 52.0907}

	if DistanceKm(a, b) != DistanceKm(b, a) {
		t.Error("distance should be symmetric")
	}
}

func TestPathLengthKm(t *testing.T) {
	tests := []struct {
		name       string
		path       orb.LineString
		expectedKm float64
		tolerance  float64
	}{
		{name: "empty", path: nil, expectedKm: 0, tolerance: 0},
		{name: "single point", path: orb.LineString{{4, 52}}, expectedKm: 0, tolerance: 0},
		{
			name: "three points north along a meridian",
			path: orb.LineString{
				{4, 52},
				{4, 52.01},
				{4, 52.02},
			},
			expectedKm: 2.22,
			tolerance:  0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PathLengthKm(tt.path)
			if diff := math.Abs(got - tt.expectedKm); diff > tt.tolerance {
				t.Errorf("expected ~%.2fkm (±%.2f), got %.2fkm", tt.expectedKm, tt.tolerance, got)
			}
		})
	}
}

func TestCenter(t *testing.T) {
	path := orb.LineString{
		{4.0, 52.0},
		{5.0, 53.0},
		{4.5, 52.5},
	}

	c := Center(path)
	if math.Abs(c[0]-4.5) > 1e-9 || math.Abs(c[1]-52.5) > 1e-9 {
		t.Errorf("expected bbox center (4.5, 52.5), got %+v", c)
	}
}

func TestCenter_Empty(t *testing.T) {
	c := Center(nil)
	if c != (orb.Point{}) {
		t.Errorf("expected zero point for empty path, got %+v", c)
	}
}
