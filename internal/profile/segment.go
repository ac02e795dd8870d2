package profile

import (
	"github.com/paulmach/orb"
)

// GradeSegment is one grade band of the gradient overlay: the unsigned grade
// between two consecutive samples and the true-resolution geometry between
// them. Consecutive segments share their boundary point, so an overlay
// partitions the full path without gaps or duplicated interior points.
type GradeSegment struct {
	Grade    float64
	Geometry orb.LineString
}

// ColorHex returns the segment's ramp color for map display.
func (s GradeSegment) ColorHex() string {
	return GradeColorHex(s.Grade)
}

// Segments expands a sparse profile back onto the full-resolution path it
// was sampled from, emitting one colored band per consecutive sample pair.
//
// Elevation is only known at the samples, but coloring must follow actual
// road curvature, so each band carries the sub-path between its sample
// indices rather than a straight line between its endpoints. The geometry
// aliases fullPath, which is immutable once routed. Degenerate slices with
// fewer than 2 points fall back to the two sampled coordinates.
func Segments(p *Profile, fullPath orb.LineString) []GradeSegment {
	if p == nil || p.Len() < 2 {
		return nil
	}

	segs := make([]GradeSegment, 0, p.Len()-1)
	for i := 0; i < p.Len()-1; i++ {
		lo, hi := p.Indices[i], p.Indices[i+1]

		var geom orb.LineString
		if lo >= 0 && hi < len(fullPath) && hi > lo {
			geom = fullPath[lo : hi+1]
		}
		if len(geom) < 2 {
			geom = orb.LineString{p.Coords[i], p.Coords[i+1]}
		}

		segs = append(segs, GradeSegment{Grade: p.Grade(i), Geometry: geom})
	}
	return segs
}
