package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

// LineSnapshot is the frozen order line carried by order and payment events.
type LineSnapshot struct {
	ItemType       enums.ItemType `json:"item_type"`
	ItemID         uuid.UUID      `json:"item_id"`
	ArtistID       *uuid.UUID     `json:"artist_id,omitempty"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unit_price_cents"`
}

// OrderCreatedEvent is emitted with the order insert.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID      `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	UserID      uuid.UUID      `json:"user_id"`
	TotalCents  int64          `json:"total_cents"`
	Lines       []LineSnapshot `json:"lines"`
}

// OrderStatusChangedEvent is emitted on every order status change.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	UserID         uuid.UUID         `json:"user_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
}

// PaymentEvent covers payment_completed, payment_failed and payment_refunded.
type PaymentEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	TransactionID string              `json:"transaction_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int64               `json:"amount_cents"`
	RetryCount    int                 `json:"retry_count"`
	Reason        string              `json:"reason,omitempty"`
	Lines         []LineSnapshot      `json:"lines"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// LinesFromOrder snapshots an order's lines for an event payload.
func LinesFromOrder(order *models.Order) []LineSnapshot {
	if order == nil {
		return nil
	}
	lines := make([]LineSnapshot, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineSnapshot{
			ItemType:       line.ItemType,
			ItemID:         line.ItemID,
			ArtistID:       line.ArtistID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	return lines
}
