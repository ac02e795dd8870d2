// Package events publishes route change notifications consumed by the
// backfill worker.
package events

import (
	"context"
	"time"
)

// Event types carried in RouteEvent.Type.
const (
	TypeRouteSaved   = "route.saved"
	TypeRouteDeleted = "route.deleted"
)

// RouteEvent is the payload published when a route is created, updated,
// or deleted.
type RouteEvent struct {
	Type       string    `json:"type"`
	RouteID    string    `json:"route_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes route change events. Implementations must be safe
// for concurrent use.
type Publisher interface {
	// Publish sends the event. Delivery is best-effort from the caller's
	// point of view; the worker tolerates missed events via its sweep.
	Publish(ctx context.Context, event RouteEvent) error

	// Close flushes pending events and releases resources.
	Close() error
}
