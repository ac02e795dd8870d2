package profile

import "math"

// extremumMinShare is the fraction of the profile's elevation range a local
// maximum or minimum must stand out by to be marked. Filters the jitter that
// sampling and elevation measurement introduce.
const extremumMinShare = 0.08

// ExtremumKind distinguishes peaks from valleys.
type ExtremumKind int

const (
	Peak ExtremumKind = iota
	Valley
)

// Extremum marks a sample as a genuine local high or low point.
type Extremum struct {
	Index int
	Kind  ExtremumKind
}

// FindExtrema returns the profile's marked peaks and valleys in index order.
// Endpoints are never extrema. A peak qualifies when it is strictly above
// both neighbors and rises more than 8% of the full elevation range above
// the lower of them; valleys are symmetric. A flat profile has none.
func FindExtrema(p *Profile) []Extremum {
	if p == nil || p.Len() < 3 {
		return nil
	}

	min, max := p.ElevationBounds()
	rng := max - min
	if rng <= 0 {
		return nil
	}
	threshold := extremumMinShare * rng

	var out []Extremum
	for i := 1; i < p.Len()-1; i++ {
		prev, cur, next := p.Elevations[i-1], p.Elevations[i], p.Elevations[i+1]

		switch {
		case cur > prev && cur > next && cur-math.Min(prev, next) > threshold:
			out = append(out, Extremum{Index: i, Kind: Peak})
		case cur < prev && cur < next && math.Max(prev, next)-cur > threshold:
			out = append(out, Extremum{Index: i, Kind: Valley})
		}
	}
	return out
}
