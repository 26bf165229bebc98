package pubsub

import (
	"context"
	"errors"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/idempotency"
)

// Handler processes one decoded outbox message.
type Handler interface {
	Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, eventType, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Status, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer receives outbox messages from a subscription, dedupes them by event id
// and hands them to a Handler. Events another delivery is still processing are
// nacked; handler failures release the claim and nack.
type Consumer struct {
	name         string
	subscription receiver
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer wires a named consumer.
func NewConsumer(name string, subscription receiver, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("consumer name is required")
	}
	if subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		name:         strings.TrimSpace(name),
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		logg:         logg,
	}, nil
}

// Name returns the consumer name used for dedupe keys.
func (c *Consumer) Name() string {
	return c.name
}

// Run blocks until ctx is canceled or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg.ID, msg.Data, msg.Attributes) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns true when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, data []byte, attributes map[string]string) bool {
	fields := map[string]any{
		"consumer":   c.name,
		"message_id": messageID,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attributes["event_type"]))
	if err != nil {
		c.logg.Warn(logCtx, "dropping message with unknown event type")
		return false
	}
	envelope, err := outbox.DecodeEnvelope(data, nil)
	if err != nil {
		c.logg.Warn(logCtx, "dropping undecodable envelope")
		return false
	}
	fields["event_type"] = eventType
	fields["event_id"] = envelope.EventID
	logCtx = c.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "dropping message with invalid event id")
		return false
	}

	status, err := c.manager.Claim(logCtx, c.name, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	switch status {
	case idempotency.Done:
		c.logg.Debug(logCtx, "event already processed")
		return false
	case idempotency.InFlight:
		c.logg.Debug(logCtx, "event is being processed by another delivery")
		return true
	}

	if err := c.handler.Handle(logCtx, eventType, *envelope); err != nil {
		if !pkgerrors.Retryable(err) {
			c.logg.Error(logCtx, "handler rejected event permanently, dropping", err)
			if doneErr := c.manager.Complete(logCtx, c.name, eventID); doneErr != nil {
				c.logg.Warn(c.logg.WithField(logCtx, "error", doneErr.Error()), "failed to mark event done")
			}
			return false
		}
		c.logg.Error(logCtx, "handler failed", err)
		if relErr := c.manager.Release(logCtx, c.name, eventID); relErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency marker", relErr)
		}
		return true
	}
	if err := c.manager.Complete(logCtx, c.name, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "failed to mark event done")
	}
	return false
}
