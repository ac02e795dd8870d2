package models

import "github.com/paulmach/orb/geojson"

// SessionOpenRequest is the request body for opening a builder session.
type SessionOpenRequest struct {
	// RouteID seeds the session with a saved route's geometry and cached
	// profile. The session starts from scratch when empty.
	RouteID string `json:"routeId,omitempty"`

	// RouteType selects the routing profile used for waypoint edits:
	// road, gravel, or mtb. Defaults to gravel.
	RouteType string `json:"routeType,omitempty" validate:"omitempty,oneof=road gravel mtb"`
}

// SessionWaypointsRequest is the request body for a waypoint edit.
type SessionWaypointsRequest struct {
	// Waypoints are [lng, lat] pairs in visiting order.
	Waypoints [][]float64 `json:"waypoints"`
}

// SessionGeometryRequest is the request body for a direct geometry edit,
// used for imported or hand-drawn paths that bypass routing.
type SessionGeometryRequest struct {
	Geometry *geojson.Geometry `json:"geometry"`
}

// SessionStats is the headline distance and climb of the session's path.
type SessionStats struct {
	// Available reports whether the stats describe a built profile. When
	// false the path is empty or too short and the numbers are meaningless.
	Available  bool    `json:"available"`
	DistanceKm float64 `json:"distanceKm"`
	GainM      float64 `json:"gainM"`
}

// Session is a snapshot of a builder session.
type Session struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`

	// TTLSeconds is the idle lifetime of the session. Only set in the
	// response to opening a session.
	TTLSeconds int `json:"ttlSeconds,omitempty"`

	Stats SessionStats `json:"stats"`

	// Geometry is the current full-resolution path as a GeoJSON LineString.
	Geometry *geojson.Geometry `json:"geometry,omitempty"`

	// Overlay is the grade-colored path as a FeatureCollection. Each
	// feature is one segment with grade and color properties.
	Overlay *geojson.FeatureCollection `json:"overlay,omitempty"`

	Surface []SurfaceShare `json:"surface,omitempty"`

	// Error is the most recent visible fetch failure, empty when the last
	// run succeeded.
	Error string `json:"error,omitempty"`

	UpdatedAt Timestamp `json:"updatedAt"`
}

// HoverInfo describes the profile point nearest to a hover position on the
// session's chart.
type HoverInfo struct {
	Index        int     `json:"index"`
	DistanceKm   float64 `json:"distanceKm"`
	ElevationM   float64 `json:"elevationM"`
	GradePercent float64 `json:"gradePercent"`

	// Coordinate is the [lng, lat] position of the sample on the map.
	Coordinate []float64 `json:"coordinate"`
}
