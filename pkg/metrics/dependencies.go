package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DependencyMetrics counts calls to outbound collaborators and the times a
// caller fell back instead of failing.
type DependencyMetrics struct {
	calls     *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
}

// NewDependencyMetrics registers dependency metrics. A nil registerer yields a no-op recorder.
func NewDependencyMetrics(reg prometheus.Registerer) *DependencyMetrics {
	if reg == nil {
		return &DependencyMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackvault_dependency_calls_total",
		Help: "Outbound dependency calls by dependency and result.",
	}, []string{"dependency", "result"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trackvault_dependency_fallbacks_total",
		Help: "Times a dependency failure was absorbed by a fallback.",
	}, []string{"dependency"})
	reg.MustRegister(calls, fallbacks)
	return &DependencyMetrics{calls: calls, fallbacks: fallbacks}
}

// ObserveCall records one outbound call.
func (m *DependencyMetrics) ObserveCall(dependency string, err error) {
	if m == nil || m.calls == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.calls.WithLabelValues(normalizeLabel(dependency), result).Inc()
}

// IncFallback records a fail-open or placeholder fallback.
func (m *DependencyMetrics) IncFallback(dependency string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(dependency)).Inc()
}
