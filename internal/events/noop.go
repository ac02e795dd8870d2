package events

import "context"

// NoopPublisher discards events. Used when Pub/Sub is not configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, RouteEvent) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }

// Ensure NoopPublisher implements Publisher interface.
var _ Publisher = NoopPublisher{}
