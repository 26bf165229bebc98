package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db/models"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/registry"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestProcessBatchRetriesFailureAndPublishesTheRest(t *testing.T) {
	first := paymentEvent(t, enums.EventPaymentFailed, 0)
	second := paymentEvent(t, enums.EventPaymentCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakeResult{err: errors.New("deadline exceeded")},
		fakeResult{},
	}}
	svc := newTestService(t, repo, pub, &fakeRegistry{topic: "payments"}, &fakeDLQ{}, config.OutboxConfig{})

	stats, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.published)
	assert.Equal(t, 1, stats.retried)
	assert.Equal(t, []settledRow{
		{eventType: enums.EventPaymentFailed, outcome: outcomeRetry},
		{eventType: enums.EventPaymentCompleted, outcome: outcomePublished},
	}, stats.settled)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
	assert.Empty(t, repo.terminal)
}

func TestPublishCarriesEnvelopeAttributes(t *testing.T) {
	event := paymentEvent(t, enums.EventPaymentRefunded, 0)
	pub := &fakePublisher{results: []publishResult{fakeResult{}}}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{topic: "payments"}, &fakeDLQ{}, config.OutboxConfig{})
	var topics []string
	svc.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"payments"}, topics)
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, string(enums.EventPaymentRefunded), msg.Attributes["event_type"])
	assert.Equal(t, string(enums.AggregatePayment), msg.Attributes["aggregate_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, "1", msg.Attributes["schema_version"])
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), msg.Attributes["occurred_at"])
}

func TestUnresolvableEventIsDeadLettered(t *testing.T) {
	event := paymentEvent(t, enums.EventPaymentCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("unknown event type"))}
	svc := newTestService(t, repo, &fakePublisher{}, reg, dlq, config.OutboxConfig{})

	stats, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlq.entries, 1)

	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []byte(event.Payload), []byte(entry.Payload))
	assert.Equal(t, fixedNow, entry.FailedAt)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "unknown event type")
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestMissingPublisherIsDeadLettered(t *testing.T) {
	event := paymentEvent(t, enums.EventPaymentCompleted, 0)
	dlq := &fakeDLQ{}
	svc := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, nil, &fakeRegistry{topic: "payments"}, dlq, config.OutboxConfig{})
	svc.publisherFactory = func(string) publisher { return nil }

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestExhaustedAttemptsAreDeadLettered(t *testing.T) {
	event := paymentEvent(t, enums.EventPaymentCompleted, 2)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{results: []publishResult{fakeResult{err: errors.New("unavailable")}}}
	svc := newTestService(t, repo, pub, &fakeRegistry{topic: "payments"}, dlq, config.OutboxConfig{MaxAttempts: 3})

	stats, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	assert.Equal(t, 1, stats.total())
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "gave up after 3 attempts")
	assert.Empty(t, repo.failed)
}

func TestCommittedBatchIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	events := []models.OutboxEvent{
		paymentEvent(t, enums.EventPaymentCompleted, 0),
		paymentEvent(t, enums.EventPaymentCompleted, 0),
	}
	pub := &fakePublisher{results: []publishResult{fakeResult{}, fakeResult{err: errors.New("unavailable")}}}
	svc := newTestService(t, &fakeRepo{events: events}, pub, &fakeRegistry{topic: "payments"}, &fakeDLQ{}, config.OutboxConfig{})
	svc.metrics = metrics.NewOutboxMetrics(reg)

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, deliveries(t, reg, enums.EventPaymentCompleted, metrics.OutboxPublished))
	assert.Equal(t, 1.0, deliveries(t, reg, enums.EventPaymentCompleted, metrics.OutboxRetried))
}

func deliveries(t *testing.T, reg *prometheus.Registry, eventType enums.OutboxEventType, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "trackvault_outbox_deliveries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == string(eventType) && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewServiceReportsEveryMissingDependency(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
	for _, want := range []string{"database client", "pubsub client", "outbox repository", "event registry", "dlq repository"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestPollBackoffDoublesUntilCapped(t *testing.T) {
	b := pollBackoff{base: 2 * time.Second, max: 10 * time.Second}
	assert.Equal(t, 2*time.Second, b.reset())
	assert.Equal(t, 4*time.Second, b.grow())
	assert.Equal(t, 8*time.Second, b.grow())
	assert.Equal(t, 10*time.Second, b.grow())
	assert.Equal(t, 10*time.Second, b.grow())
	assert.Equal(t, 2*time.Second, b.reset())
}

func TestRunStopsOnFailedPing(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQ{}, config.OutboxConfig{})
	svc.pubsub = &fakePubSub{pingErr: errors.New("no credentials")}

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub ping failed")
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, dlq dlqRepository, cfg config.OutboxConfig) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Outbox:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           &fakePubSub{},
		Repository:       repo,
		Registry:         reg,
		DLQRepository:    dlq,
		PublisherFactory: func(string) publisher { return pub },
		Now:              func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func paymentEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: fixedNow,
		Data:       json.RawMessage(`{"orderNumber":"ORD-20261001-ABCDEF"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     fixedNow,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, _ int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct {
	pingErr error
}

func (f *fakePubSub) Ping(context.Context) error { return f.pingErr }

func (f *fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakeResult struct {
	err error
}

func (f fakeResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

// fakeRegistry resolves every event to topic using the event's own envelope.
type fakeRegistry struct {
	topic string
	err   error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: f.topic, AggregateType: event.AggregateType},
		Envelope:   env,
	}, nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
