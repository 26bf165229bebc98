package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/idempotency"
)

type stubManager struct {
	markers  map[uuid.UUID]idempotency.Status
	released []uuid.UUID
	err      error
}

func (m *stubManager) Claim(_ context.Context, _ string, id uuid.UUID) (idempotency.Status, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.markers == nil {
		m.markers = map[uuid.UUID]idempotency.Status{}
	}
	if status, ok := m.markers[id]; ok {
		return status, nil
	}
	m.markers[id] = idempotency.InFlight
	return idempotency.Claimed, nil
}

func (m *stubManager) Complete(_ context.Context, _ string, id uuid.UUID) error {
	m.markers[id] = idempotency.Done
	return nil
}

func (m *stubManager) Release(_ context.Context, _ string, id uuid.UUID) error {
	m.released = append(m.released, id)
	delete(m.markers, id)
	return nil
}

func envelopeBytes(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"ok":true}`),
	})
	require.NoError(t, err)
	return body
}

func newTestConsumer(t *testing.T, handler Handler, manager *stubManager) *Consumer {
	t.Helper()
	return &Consumer{name: "test", handler: handler, manager: manager, logg: logger.Nop()}
}

func TestConsumerHandlesOnce(t *testing.T) {
	calls := 0
	manager := &stubManager{}
	c := newTestConsumer(t, HandlerFunc(func(_ context.Context, et enums.OutboxEventType, env outbox.PayloadEnvelope) error {
		calls++
		require.Equal(t, enums.EventPaymentCompleted, et)
		return nil
	}), manager)

	id := uuid.New()
	attrs := map[string]string{"event_type": string(enums.EventPaymentCompleted)}
	require.False(t, c.process(context.Background(), "m1", envelopeBytes(t, id), attrs))
	require.False(t, c.process(context.Background(), "m2", envelopeBytes(t, id), attrs))
	require.Equal(t, 1, calls)
}

func TestConsumerNacksWhileAnotherDeliveryHoldsTheClaim(t *testing.T) {
	id := uuid.New()
	manager := &stubManager{markers: map[uuid.UUID]idempotency.Status{id: idempotency.InFlight}}
	calls := 0
	c := newTestConsumer(t, HandlerFunc(func(context.Context, enums.OutboxEventType, outbox.PayloadEnvelope) error {
		calls++
		return nil
	}), manager)

	nack := c.process(context.Background(), "m1", envelopeBytes(t, id), map[string]string{"event_type": string(enums.EventPaymentCompleted)})
	require.True(t, nack)
	require.Zero(t, calls)
}

func TestConsumerReleasesOnHandlerError(t *testing.T) {
	manager := &stubManager{}
	c := newTestConsumer(t, HandlerFunc(func(context.Context, enums.OutboxEventType, outbox.PayloadEnvelope) error {
		return errors.New("boom")
	}), manager)

	id := uuid.New()
	nack := c.process(context.Background(), "m1", envelopeBytes(t, id), map[string]string{"event_type": string(enums.EventOrderCreated)})
	require.True(t, nack)
	require.Equal(t, []uuid.UUID{id}, manager.released)
}

func TestConsumerDropsPermanentHandlerErrors(t *testing.T) {
	manager := &stubManager{}
	calls := 0
	c := newTestConsumer(t, HandlerFunc(func(context.Context, enums.OutboxEventType, outbox.PayloadEnvelope) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no lines")
	}), manager)

	id := uuid.New()
	attrs := map[string]string{"event_type": string(enums.EventPaymentCompleted)}
	require.False(t, c.process(context.Background(), "m1", envelopeBytes(t, id), attrs))
	require.Empty(t, manager.released)
	require.Equal(t, idempotency.Done, manager.markers[id])

	require.False(t, c.process(context.Background(), "m2", envelopeBytes(t, id), attrs))
	require.Equal(t, 1, calls)
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	calls := 0
	c := newTestConsumer(t, HandlerFunc(func(context.Context, enums.OutboxEventType, outbox.PayloadEnvelope) error {
		calls++
		return nil
	}), &stubManager{})

	require.False(t, c.process(context.Background(), "m1", []byte("{"), map[string]string{"event_type": string(enums.EventOrderCreated)}))
	require.False(t, c.process(context.Background(), "m2", envelopeBytes(t, uuid.New()), map[string]string{"event_type": "nope"}))
	require.Zero(t, calls)
}

func TestConsumerNacksWhenDedupeUnavailable(t *testing.T) {
	c := newTestConsumer(t, HandlerFunc(func(context.Context, enums.OutboxEventType, outbox.PayloadEnvelope) error {
		return nil
	}), &stubManager{err: errors.New("redis down")})

	require.True(t, c.process(context.Background(), "m1", envelopeBytes(t, uuid.New()), map[string]string{"event_type": string(enums.EventOrderCreated)}))
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer("", nil, nil, nil, nil)
	require.Error(t, err)
}
