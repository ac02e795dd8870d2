// Package routing turns ordered builder waypoints into routed path geometry.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists through the given waypoints.
	// Callers retain their previous geometry; this is not a pipeline failure.
	ErrNoRouteFound = errors.New("no route found through the given waypoints")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates a waypoint is out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrTooFewWaypoints indicates fewer than two waypoints were supplied.
	ErrTooFewWaypoints = errors.New("at least two waypoints are required")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetDirections routes through the waypoints in order and returns the
	// full-resolution path geometry with its road distance.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedProfiles returns the list of route profiles this provider supports.
	SupportedProfiles() []RouteProfile
}

// RouteProfile represents a routing profile (mode of transport).
type RouteProfile string

const (
	// ProfileBike is the default profile for the route builder.
	ProfileBike RouteProfile = "cycling-regular"
	// ProfileBikeRoad favors paved roads, for road routes.
	ProfileBikeRoad RouteProfile = "cycling-road"
	// ProfileBikeMountain allows rough tracks, for gravel and MTB routes.
	ProfileBikeMountain RouteProfile = "cycling-mountain"
	// ProfileWalk is the foot-walking profile.
	ProfileWalk RouteProfile = "foot-walking"
)

// DirectionsRequest is the request for routing through waypoints.
type DirectionsRequest struct {
	// Waypoints in visit order, [lon, lat]. At least two.
	Waypoints []orb.Point
	Profile   RouteProfile
}

// DirectionsResponse is the routed path. Geometry is the authoritative
// full-resolution shape of the route and is immutable once returned; the
// profile pipeline samples it but never modifies it.
type DirectionsResponse struct {
	Geometry        orb.LineString
	DistanceMeters  float64
	DurationSeconds float64
	Provider        string
	FetchedAt       time.Time
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
