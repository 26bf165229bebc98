package library

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/payloads"
)

// FulfillmentConsumerName keys the reconciler's dedupe markers.
const FulfillmentConsumerName = "fulfillment-reconciler"

type entitlementGranter interface {
	GrantEntitlements(ctx context.Context, order *models.Order, paymentID uuid.UUID) (int, error)
}

// FulfillmentHandler re-applies entitlement grants for completed payments.
// The grant is idempotent, so replays and duplicate deliveries are harmless.
type FulfillmentHandler struct {
	granter entitlementGranter
	logg    *logger.Logger
}

// NewFulfillmentHandler wires the reconciler used by the worker.
func NewFulfillmentHandler(granter entitlementGranter, logg *logger.Logger) (*FulfillmentHandler, error) {
	if granter == nil {
		return nil, fmt.Errorf("entitlement granter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &FulfillmentHandler{granter: granter, logg: logg}, nil
}

// Handle implements pubsub.Handler.
func (h *FulfillmentHandler) Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if eventType != enums.EventPaymentCompleted {
		return nil
	}
	var event payloads.PaymentEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		h.logg.Warn(h.logg.WithField(ctx, "event_id", envelope.EventID), "skipping undecodable payment event")
		return nil
	}

	order := orderFromEvent(event)
	granted, err := h.granter.GrantEntitlements(ctx, order, event.PaymentID)
	if err != nil {
		return err
	}
	if granted > 0 {
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"order_id":   event.OrderID,
			"payment_id": event.PaymentID,
			"granted":    granted,
		}), "reconciler granted missing entitlements")
	}
	return nil
}

func orderFromEvent(event payloads.PaymentEvent) *models.Order {
	order := &models.Order{
		ID:          event.OrderID,
		OrderNumber: event.OrderNumber,
		UserID:      event.UserID,
		Lines:       make([]models.OrderLine, 0, len(event.Lines)),
	}
	for i, line := range event.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			OrderID:        event.OrderID,
			Position:       i + 1,
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			ArtistID:       line.ArtistID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.UnitPriceCents * int64(line.Quantity),
		})
	}
	return order
}
