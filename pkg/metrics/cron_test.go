package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_790_000_000, 0) }

	m.Record("stale_payments", CronSucceeded, 250*time.Millisecond)
	m.Record("stale_payments", CronFailed, 100*time.Millisecond)
	m.Record("stale_payments", CronSkipped, 0)
	m.Record("stale_payments", CronSkipped, 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := func(result string) float64 {
		return counterWithLabels(t, mfs, "trackvault_cron_job_runs_total", map[string]string{"job": "stale_payments", "result": result})
	}
	assert.Equal(t, 1.0, runs(CronSucceeded))
	assert.Equal(t, 1.0, runs(CronFailed))
	assert.Equal(t, 2.0, runs(CronSkipped))

	hist := findMetricFamily(mfs, "trackvault_cron_job_duration_seconds")
	require.NotNil(t, hist)
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount(), "skipped runs are not timed")
	assert.InDelta(t, 0.35, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)

	gauge := findMetricFamily(mfs, "trackvault_cron_job_last_success_timestamp_seconds")
	require.NotNil(t, gauge)
	assert.Equal(t, 1_790_000_000.0, gauge.GetMetric()[0].GetGauge().GetValue())
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	assert.Nil(t, m)
	assert.NotPanics(t, func() { m.Record("job", CronFailed, time.Second) })
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
