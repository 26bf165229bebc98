package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
)

type DeadLetter struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         string                     `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload"`
}

func NewDeadLetters(rows []models.OutboxDLQ) []DeadLetter {
	out := make([]DeadLetter, 0, len(rows))
	for _, row := range rows {
		d := DeadLetter{
			ID:            row.ID,
			EventID:       row.EventID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Reason:        row.ErrorReason,
			Attempts:      row.AttemptCount,
			FailedAt:      row.FailedAt,
			Payload:       json.RawMessage(row.Payload),
		}
		if row.ErrorMessage != nil {
			d.Error = *row.ErrorMessage
		}
		out = append(out, d)
	}
	return out
}

// ReplayedEvent is the outbox row a replay put back in the publish queue.
type ReplayedEvent struct {
	EventID   uuid.UUID             `json:"event_id"`
	EventType enums.OutboxEventType `json:"event_type"`
	QueuedAt  time.Time             `json:"queued_at"`
}
