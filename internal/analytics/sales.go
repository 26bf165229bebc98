package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/trackvault-backend/internal/analytics/types"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/payloads"
)

// ConsumerName keys the analytics dedupe markers.
const ConsumerName = "sales-analytics"

type salesWriter interface {
	InsertSales(ctx context.Context, rows ...types.SalesEventRow) error
	Flush(ctx context.Context) error
}

// SalesHandler turns completed and refunded payments into sales fact rows.
type SalesHandler struct {
	writer salesWriter
	logg   *logger.Logger
}

// NewSalesHandler builds the handler used by the analytics consumer.
func NewSalesHandler(writer salesWriter, logg *logger.Logger) (*SalesHandler, error) {
	if writer == nil {
		return nil, fmt.Errorf("sales writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SalesHandler{writer: writer, logg: logg}, nil
}

// Handle implements pubsub.Handler.
func (h *SalesHandler) Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	sign := int64(1)
	switch eventType {
	case enums.EventPaymentCompleted:
	case enums.EventPaymentRefunded:
		sign = -1
	default:
		return nil
	}

	var event payloads.PaymentEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		h.logg.Warn(ctx, "skipping undecodable payment event")
		return nil
	}

	rows := BuildSalesRows(envelope, eventType, event, sign)
	if len(rows) == 0 {
		return nil
	}
	if err := h.writer.InsertSales(ctx, rows...); err != nil {
		return err
	}
	return h.writer.Flush(ctx)
}

// BuildSalesRows expands a payment event into one row per order line.
func BuildSalesRows(envelope outbox.PayloadEnvelope, eventType enums.OutboxEventType, event payloads.PaymentEvent, sign int64) []types.SalesEventRow {
	occurredAt := envelope.OccurredAt.UTC()
	if !event.OccurredAt.IsZero() {
		occurredAt = event.OccurredAt.UTC()
	}

	rows := make([]types.SalesEventRow, 0, len(event.Lines))
	for i, line := range event.Lines {
		var artistID cbigquery.NullString
		if line.ArtistID != nil {
			artistID = cbigquery.NullString{StringVal: line.ArtistID.String(), Valid: true}
		}
		qty := int64(line.Quantity)
		rows = append(rows, types.SalesEventRow{
			EventID:        envelope.EventID,
			EventType:      string(eventType),
			OccurredAt:     occurredAt,
			OrderID:        event.OrderID.String(),
			OrderNumber:    event.OrderNumber,
			PaymentID:      event.PaymentID.String(),
			TransactionID:  event.TransactionID,
			BuyerID:        event.UserID.String(),
			ArtistID:       artistID,
			ItemType:       string(line.ItemType),
			ItemID:         line.ItemID.String(),
			Quantity:       sign * qty,
			UnitPriceCents: line.UnitPriceCents,
			AmountCents:    sign * qty * line.UnitPriceCents,
			PaymentMethod:  string(event.Method),
			LineNo:         int64(i),
		})
	}
	return rows
}
