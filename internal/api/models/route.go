package models

import "github.com/paulmach/orb/geojson"

// ElevationProfile is the cached elevation profile of a route: parallel
// arrays of sampled elevations, cumulative distances, coordinates, and
// original path indices, plus the total climb.
type ElevationProfile struct {
	Elevations  []float64   `json:"elevations"`
	DistancesKm []float64   `json:"distances_km"`
	Coordinates [][]float64 `json:"coordinates"`
	Indices     []int       `json:"indices"`
	GainM       float64     `json:"gain_m"`
}

// SurfaceShare is one entry of a route's surface composition.
type SurfaceShare struct {
	Surface string  `json:"surface"`
	Percent float64 `json:"percent"`
}

// Route represents a saved route.
type Route struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	RouteType   string  `json:"routeType"`
	Region      string  `json:"region,omitempty"`
	DistanceKm  float64 `json:"distanceKm"`
	ElevationM  float64 `json:"elevationM"`

	// Geometry is the routed path as a GeoJSON LineString, [lng, lat].
	Geometry *geojson.Geometry `json:"geometry,omitempty"`
	// Waypoints are the builder waypoints the route was authored from.
	Waypoints [][]float64 `json:"waypoints,omitempty"`

	CenterLng float64 `json:"centerLng"`
	CenterLat float64 `json:"centerLat"`
	Geohash   string  `json:"geohash,omitempty"`

	ElevationProfile *ElevationProfile `json:"elevationProfile,omitempty"`
	SurfaceData      []SurfaceShare    `json:"surfaceData,omitempty"`

	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// RouteCreateRequest is the request body for creating a route.
type RouteCreateRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=120"`
	Description string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	RouteType   string  `json:"routeType,omitempty" validate:"omitempty,oneof=road gravel mtb"`
	Region      string  `json:"region,omitempty" validate:"omitempty,max=80"`
	DistanceKm  float64 `json:"distanceKm,omitempty"`
	ElevationM  float64 `json:"elevationM,omitempty"`

	Geometry  *geojson.Geometry `json:"geometry,omitempty"`
	Waypoints [][]float64       `json:"waypoints,omitempty"`

	ElevationProfile *ElevationProfile `json:"elevationProfile,omitempty"`
	SurfaceData      []SurfaceShare    `json:"surfaceData,omitempty"`
}

// RouteUpdateRequest is the request body for updating a route.
type RouteUpdateRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	RouteType   *string  `json:"routeType,omitempty" validate:"omitempty,oneof=road gravel mtb"`
	Region      *string  `json:"region,omitempty" validate:"omitempty,max=80"`
	DistanceKm  *float64 `json:"distanceKm,omitempty"`
	ElevationM  *float64 `json:"elevationM,omitempty"`

	Geometry  *geojson.Geometry `json:"geometry,omitempty"`
	Waypoints [][]float64       `json:"waypoints,omitempty"`

	ElevationProfile *ElevationProfile `json:"elevationProfile,omitempty"`
	SurfaceData      []SurfaceShare    `json:"surfaceData,omitempty"`
}

// PagedRoutes represents a paginated list of routes.
type PagedRoutes struct {
	Items []Route           `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
