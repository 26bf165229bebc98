package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run results.
const (
	CronSucceeded = "success"
	CronFailed    = "failure"
	// CronSkipped means another worker held the job lock.
	CronSkipped = "skipped"
)

// CronJobMetrics tracks scheduled job runs. A nil *CronJobMetrics is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackvault_cron_job_runs_total",
			Help: "Scheduled job runs by job and result (success, failure, skipped).",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trackvault_cron_job_duration_seconds",
			Help:    "Wall time of scheduled jobs that acquired their lock.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trackvault_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of each job's most recent successful run.",
		}, []string{"job"}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// Record counts one run. Duration is only observed for runs that executed.
func (m *CronJobMetrics) Record(job, result string, took time.Duration) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, normalizeLabel(result)).Inc()
	if result == CronSkipped {
		return
	}
	if took > 0 {
		m.duration.WithLabelValues(job).Observe(took.Seconds())
	}
	if result == CronSucceeded {
		m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
