package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/api/controllers/dto"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
)

type stubDeadLetters struct {
	filter    outbox.DLQFilter
	rows      []models.OutboxDLQ
	replayed  uuid.UUID
	replayErr error
}

func (s *stubDeadLetters) List(_ context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error) {
	s.filter = filter
	return s.rows, nil
}

func (s *stubDeadLetters) Replay(_ context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	s.replayed = id
	if s.replayErr != nil {
		return nil, s.replayErr
	}
	return &models.OutboxEvent{ID: uuid.New(), EventType: enums.EventPaymentCompleted}, nil
}

func deadLetterRouter(store DeadLetterStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/dead-letters", ListDeadLetters(store, logger.Nop()))
	r.Post("/dead-letters/{entryId}/replay", ReplayDeadLetter(store, logger.Nop()))
	return r
}

func TestListDeadLettersParsesFilter(t *testing.T) {
	msg := "no topic for event type"
	store := &stubDeadLetters{rows: []models.OutboxDLQ{{
		ID:           uuid.New(),
		EventID:      uuid.New(),
		EventType:    enums.EventOrderCreated,
		ErrorReason:  enums.OutboxDLQReasonNonRetryable,
		ErrorMessage: &msg,
		Payload:      models.JSON(`{"data":{}}`),
	}}}

	resp := httptest.NewRecorder()
	deadLetterRouter(store).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/dead-letters?reason=NON_RETRYABLE&limit=10", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, outbox.DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable, Limit: 10}, store.filter)

	var body struct {
		Data []dto.DeadLetter `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, msg, body.Data[0].Error)
	assert.JSONEq(t, `{"data":{}}`, string(body.Data[0].Payload))
}

func TestListDeadLettersRejectsUnknownReason(t *testing.T) {
	resp := httptest.NewRecorder()
	deadLetterRouter(&stubDeadLetters{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/dead-letters?reason=cosmic_rays", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReplayDeadLetter(t *testing.T) {
	store := &stubDeadLetters{}
	entryID := uuid.New()

	resp := httptest.NewRecorder()
	deadLetterRouter(store).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/dead-letters/"+entryID.String()+"/replay", nil))
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, entryID, store.replayed)

	store.replayErr = outbox.ErrDLQEntryNotFound
	resp = httptest.NewRecorder()
	deadLetterRouter(store).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/dead-letters/"+uuid.NewString()+"/replay", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	store.replayErr = errors.New("database is locked")
	resp = httptest.NewRecorder()
	deadLetterRouter(store).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/dead-letters/"+uuid.NewString()+"/replay", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
