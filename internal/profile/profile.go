// Package profile implements the elevation and gradient profile engine:
// downsampling a routed path, pairing it with elevation samples, computing
// cumulative distances and per-segment grades, and expanding the sparse
// profile back onto full-resolution geometry for map display.
package profile

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"github.com/cyclemaps/cyclemaps/pkg/geo"
)

var (
	// ErrInsufficientGeometry indicates a path with fewer than 2 coordinates.
	// The pipeline no-ops on it; stats are reported as unavailable, not zero.
	ErrInsufficientGeometry = errors.New("profile: path has fewer than 2 coordinates")

	// ErrShapeMismatch indicates the elevation lookup returned a different
	// number of values than the sample count sent. Fatal to that run only;
	// a previously built profile stays valid.
	ErrShapeMismatch = errors.New("profile: elevation count does not match sample count")
)

// Profile is the sampled vertical shape of a route: four parallel sequences
// of identical length n >= 2. A Profile is immutable once built; a new route
// edit discards it and builds a fresh one.
type Profile struct {
	// Elevations in meters, one per retained sample, nulls sanitized to 0.
	Elevations []float64
	// Distances in cumulative kilometers from the path start. Non-decreasing,
	// Distances[0] == 0.
	Distances []float64
	// Coords are the sampled coordinates, [lon, lat].
	Coords orb.LineString
	// Indices are each sample's index in the original full-resolution path.
	Indices []int
	// GainMeters is the total elevation gain over the route.
	GainMeters float64
}

// Build pairs a sample set with the elevations returned for it and derives
// cumulative distances, gain, and grade accessors.
//
// Elevations are nullable: nil and NaN entries are substituted with 0 before
// any distance or grade math. That is a deliberately lossy policy (the
// affected points still appear, at sea level), not interpolation. When the
// elevation service supplied a precomputed gain it is accepted verbatim;
// otherwise gain is the sum of positive deltas between consecutive
// sanitized elevations.
func Build(samples SampleSet, elevations []*float64, gainMeters *float64) (*Profile, error) {
	if len(elevations) != len(samples) {
		return nil, ErrShapeMismatch
	}
	if len(samples) < 2 {
		return nil, ErrInsufficientGeometry
	}

	n := len(samples)
	p := &Profile{
		Elevations: make([]float64, n),
		Distances:  make([]float64, n),
		Coords:     make(orb.LineString, n),
		Indices:    make([]int, n),
	}

	for i, sp := range samples {
		p.Coords[i] = sp.Coord
		p.Indices[i] = sp.Index
		if e := elevations[i]; e != nil && !math.IsNaN(*e) {
			p.Elevations[i] = *e
		}
	}

	for i := 1; i < n; i++ {
		p.Distances[i] = p.Distances[i-1] + geo.DistanceKm(p.Coords[i-1], p.Coords[i])
	}

	if gainMeters != nil && !math.IsNaN(*gainMeters) {
		p.GainMeters = *gainMeters
	} else {
		for i := 1; i < n; i++ {
			if d := p.Elevations[i] - p.Elevations[i-1]; d > 0 {
				p.GainMeters += d
			}
		}
	}

	return p, nil
}

// Len returns the number of samples in the profile.
func (p *Profile) Len() int { return len(p.Elevations) }

// TotalKm returns the cumulative distance at the final sample.
func (p *Profile) TotalKm() float64 {
	return p.Distances[len(p.Distances)-1]
}

// ElevationBounds returns the minimum and maximum sampled elevation.
func (p *Profile) ElevationBounds() (min, max float64) {
	min, max = p.Elevations[0], p.Elevations[0]
	for _, e := range p.Elevations[1:] {
		if e < min {
			min = e
		}
		if e > max {
			max = e
		}
	}
	return min, max
}

// Grade returns the unsigned grade of segment i (between samples i and i+1)
// in percent. A zero horizontal run yields 0: treated as flat, not infinite,
// since truly vertical segments do not occur in route data.
func (p *Profile) Grade(i int) float64 {
	g := p.SignedGrade(i)
	return math.Abs(g)
}

// SignedGrade is Grade with the sign of the elevation change kept, for
// display contexts that show direction (the hover tooltip).
func (p *Profile) SignedGrade(i int) float64 {
	runMeters := (p.Distances[i+1] - p.Distances[i]) * 1000
	if runMeters == 0 {
		return 0
	}
	return (p.Elevations[i+1] - p.Elevations[i]) / runMeters * 100
}

// NearestIndex returns the sample index whose cumulative distance is closest
// to targetKm, resolving ties to the lower index. The scan is linear, which
// is fine at the sample cap.
func (p *Profile) NearestIndex(targetKm float64) int {
	best := 0
	bestDiff := math.Abs(p.Distances[0] - targetKm)
	for i := 1; i < len(p.Distances); i++ {
		if diff := math.Abs(p.Distances[i] - targetKm); diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best
}
