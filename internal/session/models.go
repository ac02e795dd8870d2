// Package session runs the interactive route builder. One coordinator per
// session debounces geometry edits, resolves them through the routing,
// elevation, and surface providers, and maintains the profile, gradient
// overlay, and hover chart that the map and HTTP layer consume.
package session

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/cyclemaps/cyclemaps/internal/profile"
	"github.com/cyclemaps/cyclemaps/internal/surface"
)

// State is the coordinator's position in the edit/fetch cycle.
type State string

const (
	// StateIdle means no edit is pending and no request is in flight.
	StateIdle State = "idle"
	// StateDebouncing means an edit arrived and the debounce window is open.
	// Further edits restart the window.
	StateDebouncing State = "debouncing"
	// StateFetching means a provider request is in flight for the newest edit.
	StateFetching State = "fetching"
)

// Stats summarizes the current route. Available distinguishes "no data yet"
// from a genuinely zero-length route.
type Stats struct {
	Available  bool
	DistanceKm float64
	GainMeters float64
}

// Snapshot is the session's externally visible state. The coordinator
// replaces it whole; readers receive a copy and must treat the slices and
// the profile as immutable.
type Snapshot struct {
	State      State
	Generation uint64

	// Geometry is the current full-resolution path; Waypoints the marker
	// set it was routed from, nil for drawn or imported paths.
	Geometry  orb.LineString
	Waypoints []orb.Point

	// Profile, Segments, and Surface are the derived outputs of the last
	// applied run. Profile and Segments are replaced together; Surface
	// arrives independently and may lag or be absent.
	Profile  *profile.Profile
	Segments []profile.GradeSegment
	Surface  *surface.Breakdown

	Stats Stats

	// LastError is a user-facing message from the last failed run, empty
	// after a successful one. Failures never discard previously derived
	// outputs.
	LastError string

	UpdatedAt time.Time
}

// Seed preloads a session from a saved route so it opens with the chart
// already on screen. A seed profile with fewer than two samples is ignored.
type Seed struct {
	Geometry  orb.LineString
	Waypoints []orb.Point
	Profile   *profile.Profile
}
