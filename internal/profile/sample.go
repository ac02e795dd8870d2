package profile

import (
	"github.com/paulmach/orb"
)

// DefaultMaxSamples caps the number of points sent to the elevation lookup
// service, independent of the route's true resolution. The forced inclusion
// of the final path point may push a sample set one past the cap.
const DefaultMaxSamples = 80

// SamplePoint pairs a retained coordinate with its index in the original
// full-resolution path, so the sparse profile can later be expanded back
// onto true geometry.
type SamplePoint struct {
	Coord orb.Point
	Index int
}

// SampleSet is an ordered downsampling of a path. Indices are strictly
// increasing; the first is always 0 and the last always len(path)-1.
type SampleSet []SamplePoint

// Coords returns the sampled coordinates as a line string, in order.
func (s SampleSet) Coords() orb.LineString {
	line := make(orb.LineString, len(s))
	for i, sp := range s {
		line[i] = sp.Coord
	}
	return line
}

// Sample downsamples path to at most maxSamples points using a fixed stride,
// recording each retained point's original index. The stride is the smallest
// one that keeps the retained count within the cap; the final path point is
// force-appended when the stride walks past it, which may exceed maxSamples
// by one. The true endpoint anchors total-distance and endpoint-grade math
// and is never dropped. A maxSamples <= 0 falls back to DefaultMaxSamples.
//
// Returns ErrInsufficientGeometry when the path has fewer than 2 points;
// callers must not invoke elevation lookup in that case.
func Sample(path orb.LineString, maxSamples int) (SampleSet, error) {
	m := len(path)
	if m < 2 {
		return nil, ErrInsufficientGeometry
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}

	stride := (m + maxSamples - 1) / maxSamples
	if stride < 1 {
		stride = 1
	}

	set := make(SampleSet, 0, maxSamples+1)
	for i := 0; i < m; i += stride {
		set = append(set, SamplePoint{Coord: path[i], Index: i})
	}

	if set[len(set)-1].Index != m-1 {
		set = append(set, SamplePoint{Coord: path[m-1], Index: m - 1})
	}

	return set, nil
}
