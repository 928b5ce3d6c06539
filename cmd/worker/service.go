package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/internal/notifications"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/registry"
)

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type eventHandler interface {
	Handle(ctx context.Context, resolved *registry.ResolvedEvent) error
}

// Worker pulls domain events off the subscription, rebuilds the outbox row
// from the message, and hands it to the notifications consumer.
type Worker struct {
	subscription *pubsub.Subscriber
	registry     registryResolver
	handler      eventHandler
	logg         *logger.Logger
}

func NewWorker(subscription *pubsub.Subscriber, reg registryResolver, handler eventHandler, logg *logger.Logger) (*Worker, error) {
	if subscription == nil {
		return nil, errors.New("domain subscription is required")
	}
	if reg == nil {
		return nil, errors.New("event registry is required")
	}
	if handler == nil {
		return nil, errors.New("event handler is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Worker{subscription: subscription, registry: reg, handler: handler, logg: logg}, nil
}

// Run processes messages until the context is cancelled. Malformed messages
// are acked and dropped; transient handler failures nack for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if w.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (w *Worker) process(ctx context.Context, msg *pubsub.Message) bool {
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
		"event_id":   msg.Attributes["event_id"],
	})

	event, err := eventFromMessage(msg)
	if err != nil {
		w.logg.Error(logCtx, "dropping malformed message", err)
		return true
	}

	resolved, err := w.registry.Resolve(event)
	if err != nil {
		w.logg.Error(logCtx, "dropping unresolvable event", err)
		return true
	}

	if err := w.handler.Handle(ctx, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			w.logg.Error(logCtx, "dropping non-retryable event", err)
			return true
		}
		w.logg.Warn(w.logg.WithField(logCtx, "error", err.Error()), "event handling failed, nacking for redelivery")
		return false
	}
	return true
}

// eventFromMessage reverses the attribute layout the outbox publisher writes.
func eventFromMessage(msg *pubsub.Message) (models.OutboxEvent, error) {
	eventType, err := enums.ParseOutboxEventType(msg.Attributes["event_type"])
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("event_type attribute: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(msg.Attributes["aggregate_type"])
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("aggregate_type attribute: %w", err)
	}
	aggregateID, err := uuid.Parse(msg.Attributes["aggregate_id"])
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("aggregate_id attribute: %w", err)
	}

	event := models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       msg.Data,
	}
	if raw := msg.Attributes["created_at"]; raw != "" {
		if createdAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.CreatedAt = createdAt
		}
	}
	return event, nil
}

var _ eventHandler = (*notifications.Consumer)(nil)
