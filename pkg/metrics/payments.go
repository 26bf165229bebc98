package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks payment outcomes and gateway latency.
type PaymentMetrics struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
	granted  prometheus.Counter
}

// NewPaymentMetrics registers payment metrics. A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackvault_payment_outcomes_total",
		Help: "Payment state transitions by operation and resulting status.",
	}, []string{"operation", "status"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackvault_payment_gateway_seconds",
		Help:    "Latency of the payment gateway charge call.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	})
	granted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trackvault_entitlements_granted_total",
		Help: "Library entitlements newly granted after successful payments.",
	})
	reg.MustRegister(outcomes, latency, granted)
	return &PaymentMetrics{outcomes: outcomes, latency: latency, granted: granted}
}

// ObserveOutcome counts a finished payment operation.
func (m *PaymentMetrics) ObserveOutcome(operation, status string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(operation), normalizeLabel(status)).Inc()
}

// ObserveGateway records the time spent waiting on the gateway.
func (m *PaymentMetrics) ObserveGateway(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// AddGranted counts newly created library entries.
func (m *PaymentMetrics) AddGranted(n int) {
	if m == nil || m.granted == nil || n <= 0 {
		return
	}
	m.granted.Add(float64(n))
}
