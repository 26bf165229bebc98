package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/api/controllers/dto"
	"github.com/angelmondragon/trackvault-backend/api/responses"
	"github.com/angelmondragon/trackvault-backend/api/validators"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
)

// DeadLetterStore is the admin view over the outbox dead-letter table.
type DeadLetterStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, entryID uuid.UUID) (*models.OutboxEvent, error)
}

// ListDeadLetters supports ?reason=max_attempts|non_retryable, ?event_type= and ?limit=.
func ListDeadLetters(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := outbox.DLQFilter{Limit: limit}

		q := r.URL.Query()
		if raw := strings.TrimSpace(q.Get("reason")); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason").WithDetails(map[string]any{"field": "reason"}))
				return
			}
			filter.Reason = reason
		}
		if raw := strings.TrimSpace(q.Get("event_type")); raw != "" {
			filter.EventType = enums.OutboxEventType(raw)
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, dto.NewDeadLetters(rows))
	}
}

// ReplayDeadLetter requeues one entry for the outbox publisher.
func ReplayDeadLetter(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := validators.ParseUUIDParam(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := store.Replay(r.Context(), entryID)
		switch {
		case errors.Is(err, outbox.ErrDLQEntryNotFound):
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead-letter entry not found"))
			return
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay dead letter"))
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"dlq_entry_id": entryID.String(),
				"event_id":     event.ID.String(),
				"event_type":   string(event.EventType),
			}), "dead letter replayed")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, dto.ReplayedEvent{
			EventID:   event.ID,
			EventType: event.EventType,
			QueuedAt:  time.Now().UTC(),
		})
	}
}
