// Package route persists saved cycling routes together with their cached
// derived data: routed geometry, elevation profile, and surface composition.
package route

import (
	"errors"
	"time"

	"github.com/paulmach/orb"

	"github.com/cyclemaps/cyclemaps/internal/profile"
)

// Repository errors.
var (
	// ErrRouteNotFound is returned when a route does not exist.
	ErrRouteNotFound = errors.New("route not found")

	// ErrInvalidProfile is returned when a cached elevation profile is not
	// structurally usable.
	ErrInvalidProfile = errors.New("cached elevation profile is invalid")
)

// Route types.
const (
	TypeRoad   = "road"
	TypeGravel = "gravel"
	TypeMTB    = "mtb"
)

// IsValidType reports whether t is a known route type.
func IsValidType(t string) bool {
	return t == TypeRoad || t == TypeGravel || t == TypeMTB
}

// Route is a saved cycling route.
type Route struct {
	ID          string
	Name        string
	Description string
	RouteType   string
	Region      string

	// DistanceKm is the route length along its geometry.
	DistanceKm float64
	// ElevationM is the total climb over the route.
	ElevationM float64

	// Geometry is the full-resolution routed path, [lng, lat].
	Geometry orb.LineString
	// Waypoints are the builder waypoints the route was authored from.
	Waypoints []orb.Point

	// CenterLng and CenterLat locate the bound center of the geometry.
	CenterLng float64
	CenterLat float64
	// Geohash encodes the center at precision 7, for region prefix queries.
	Geohash string

	// Profile is the cached elevation profile, nil when never derived.
	// A cached profile may be structurally invalid; readers re-derive
	// live and the backfill worker repairs the record.
	Profile *StoredProfile
	// Surface is the cached surface composition, nil when never fetched.
	Surface []SurfaceShare

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredProfile is the persisted form of a derived elevation profile:
// parallel arrays plus the total climb, matching the chart pipeline's
// sampled shape.
type StoredProfile struct {
	Elevations  []float64   `json:"elevations"`
	DistancesKm []float64   `json:"distances_km"`
	Coordinates [][]float64 `json:"coordinates"`
	Indices     []int       `json:"indices"`
	GainM       float64     `json:"gain_m"`
}

// NewStoredProfile converts a built profile into its persisted form.
func NewStoredProfile(p *profile.Profile) *StoredProfile {
	sp := &StoredProfile{
		Elevations:  append([]float64(nil), p.Elevations...),
		DistancesKm: append([]float64(nil), p.Distances...),
		Coordinates: make([][]float64, len(p.Coords)),
		Indices:     append([]int(nil), p.Indices...),
		GainM:       p.GainMeters,
	}
	for i, c := range p.Coords {
		sp.Coordinates[i] = []float64{c[0], c[1]}
	}
	return sp
}

// Valid reports whether the stored profile is structurally usable: at
// least two samples, with all parallel arrays the same length.
func (sp *StoredProfile) Valid() bool {
	if sp == nil {
		return false
	}
	n := len(sp.Elevations)
	if n < 2 {
		return false
	}
	return len(sp.DistancesKm) == n && len(sp.Coordinates) == n && len(sp.Indices) == n
}

// ToProfile reconstructs the profile for rendering and export. Returns
// ErrInvalidProfile when the stored form is not usable.
func (sp *StoredProfile) ToProfile() (*profile.Profile, error) {
	if !sp.Valid() {
		return nil, ErrInvalidProfile
	}

	p := &profile.Profile{
		Elevations: append([]float64(nil), sp.Elevations...),
		Distances:  append([]float64(nil), sp.DistancesKm...),
		Coords:     make(orb.LineString, len(sp.Coordinates)),
		Indices:    append([]int(nil), sp.Indices...),
		GainMeters: sp.GainM,
	}
	for i, c := range sp.Coordinates {
		if len(c) < 2 {
			return nil, ErrInvalidProfile
		}
		p.Coords[i] = orb.Point{c[0], c[1]}
	}
	return p, nil
}

// SurfaceShare is one entry of the cached surface composition, ordered
// longest share first.
type SurfaceShare struct {
	Surface string  `json:"surface"`
	Percent float64 `json:"percent"`
}
