package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the relay. A nil *OutboxMetrics is a no-op.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
	publish    *prometheus.HistogramVec
	batch      prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_outbox_deliveries_total",
			Help: "Outbox rows settled by event type and outcome (published, retried, dead_lettered).",
		}, []string{"event_type", "outcome"}),
		publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trackvault_outbox_publish_duration_seconds",
			Help:    "Time from Publish to server ack per topic, failures included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"topic"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackvault_outbox_batch_size",
			Help:    "Rows claimed per non-empty relay batch.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}
	reg.MustRegister(m.deliveries, m.publish, m.batch)
	return m
}

func (m *OutboxMetrics) RecordDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, took time.Duration) {
	if m == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(topic)).Observe(took.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || rows == 0 {
		return
	}
	m.batch.Observe(float64(rows))
}
