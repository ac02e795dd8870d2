package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/events"
	"github.com/cyclemaps/cyclemaps/internal/route"
)

// TypeSweep is the job type of an operator-published message that
// triggers a full backfill sweep outside the regular schedule.
const TypeSweep = "backfill.sweep"

// PubSubHandler consumes route change events for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	backfill         *BackfillJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Backfill         *BackfillJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		backfill:         cfg.Backfill,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	// Parse message. A malformed payload will never parse on redelivery
	// either, so it is acked and dropped rather than poisoning the
	// subscription.
	var event events.RouteEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Warn().Err(err).Msg("malformed event dropped")
		msg.Ack()
		return
	}

	// Handle based on event type.
	var err error
	switch event.Type {
	case events.TypeRouteSaved:
		err = h.handleRouteSaved(ctx, event)
	case events.TypeRouteDeleted:
		// Nothing to repair; the record is gone.
	case TypeSweep:
		err = h.handleSweep(ctx)
	default:
		logger.Warn().Str("type", event.Type).Msg("unknown event type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Str("type", event.Type).Msg("event handling failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("type", event.Type).
		Dur("duration", duration).
		Msg("event handled")

	msg.Ack()
}

// handleRouteSaved repairs the saved route's record if its cached profile
// or headline figures are stale. A route deleted between publish and
// delivery is not an error.
func (h *PubSubHandler) handleRouteSaved(ctx context.Context, event events.RouteEvent) error {
	repaired, err := h.backfill.RepairRoute(ctx, event.RouteID)
	if errors.Is(err, route.ErrRouteNotFound) {
		h.logger.Debug().Str("route_id", event.RouteID).Msg("route gone before repair")
		return nil
	}
	if err != nil {
		return err
	}

	if repaired {
		h.logger.Info().Str("route_id", event.RouteID).Msg("route repaired")
	}
	return nil
}

// handleSweep runs a full backfill sweep on operator request.
func (h *PubSubHandler) handleSweep(ctx context.Context) error {
	result := h.backfill.Run(ctx)

	if result.Failed > result.Repaired {
		return fmt.Errorf("too many repair failures: %d/%d", result.Failed, result.Scanned)
	}
	return nil
}
