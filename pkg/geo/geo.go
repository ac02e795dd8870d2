// Package geo provides great-circle distance helpers over orb geometry.
// Points follow the orb convention of [longitude, latitude].
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// DistanceKm returns the haversine great-circle distance between two points
// in kilometers. This measures straight-line surface distance only; the road
// distance of a routed path comes from the routing engine.
func DistanceKm(a, b orb.Point) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := (b[1] - a[1]) * math.Pi / 180
	dLon := (b[0] - a[0]) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// PathLengthKm returns the cumulative haversine length of a path in kilometers.
func PathLengthKm(path orb.LineString) float64 {
	if len(path) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(path); i++ {
		total += DistanceKm(path[i-1], path[i])
	}
	return total
}

// Center returns the center of the path's bounding box, or the zero point
// for an empty path. Saved routes store this as their map anchor.
func Center(path orb.LineString) orb.Point {
	if len(path) == 0 {
		return orb.Point{}
	}
	return path.Bound().Center()
}
