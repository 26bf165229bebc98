package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

type pruneRecorder struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *pruneRecorder) prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func TestRetentionJobComputesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.FixedZone("EST", -5*3600))
	rec := &pruneRecorder{deleted: 4}
	job, err := NewOutboxRetentionJob(logger.Nop(), rec.prune, 48*time.Hour)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, rec.cutoffs, 1)
	assert.True(t, rec.cutoffs[0].Equal(now.Add(-48*time.Hour)))
	assert.Equal(t, time.UTC, rec.cutoffs[0].Location())
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestRetentionJobWrapsPruneErrors(t *testing.T) {
	rec := &pruneRecorder{err: errors.New("db gone")}
	job, err := NewNotificationRetentionJob(logger.Nop(), rec.prune, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "notification-retention", job.Name())

	err = job.Run(context.Background())
	assert.ErrorIs(t, err, rec.err)
	assert.Contains(t, err.Error(), "notification-retention")
}

func TestNewRetentionJobValidates(t *testing.T) {
	rec := &pruneRecorder{}
	valid := RetentionJobParams{Name: "x", Logger: logger.Nop(), Prune: rec.prune, Retention: time.Hour}

	for name, mutate := range map[string]func(*RetentionJobParams){
		"name":      func(p *RetentionJobParams) { p.Name = "" },
		"logger":    func(p *RetentionJobParams) { p.Logger = nil },
		"prune":     func(p *RetentionJobParams) { p.Prune = nil },
		"retention": func(p *RetentionJobParams) { p.Retention = 0 },
	} {
		params := valid
		mutate(&params)
		_, err := NewRetentionJob(params)
		assert.Error(t, err, name)
	}
	_, err := NewRetentionJob(valid)
	assert.NoError(t, err)
}

type fakeReaper struct {
	olderThan time.Duration
	limit     int
	reaped    int
	err       error
}

func (f *fakeReaper) ReapStale(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	f.olderThan = olderThan
	f.limit = limit
	return f.reaped, f.err
}

func TestStalePaymentJob(t *testing.T) {
	reaper := &fakeReaper{reaped: 3}
	job, err := NewStalePaymentJob(StalePaymentJobParams{Logger: logger.Nop(), Reaper: reaper, StaleAfter: 10 * time.Minute})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 10*time.Minute, reaper.olderThan)
	assert.Equal(t, staleBatchSize, reaper.limit)

	reaper.err = errors.New("partial")
	assert.Error(t, job.Run(context.Background()))
}
