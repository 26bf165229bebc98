package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

// PruneFunc deletes rows older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	Prune     PruneFunc
	Retention time.Duration
}

// NewRetentionJob builds a job that prunes whatever Prune owns once it is
// older than Retention. Each run computes its cutoff from the wall clock.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, errors.New("retention job name required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Prune == nil:
		return nil, fmt.Errorf("%s: prune func required", params.Name)
	case params.Retention <= 0:
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	return &retentionJob{params: params, now: time.Now}, nil
}

// NewOutboxRetentionJob prunes published outbox rows. Pending and
// dead-lettered rows are never touched.
func NewOutboxRetentionJob(logg *logger.Logger, deletePublished PruneFunc, retention time.Duration) (Job, error) {
	return NewRetentionJob(RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		Prune:     deletePublished,
		Retention: retention,
	})
}

// NewNotificationRetentionJob prunes notifications the user already read.
func NewNotificationRetentionJob(logg *logger.Logger, deleteRead PruneFunc, retention time.Duration) (Job, error) {
	return NewRetentionJob(RetentionJobParams{
		Name:      "notification-retention",
		Logger:    logg,
		Prune:     deleteRead,
		Retention: retention,
	})
}

type retentionJob struct {
	params RetentionJobParams
	now    func() time.Time
}

func (j *retentionJob) Name() string { return j.params.Name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.params.Retention)
	deleted, err := j.params.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.params.Name, err)
	}
	logg := j.params.Logger
	logg.Info(logg.WithFields(ctx, map[string]any{
		"job":          j.params.Name,
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention prune complete")
	return nil
}
