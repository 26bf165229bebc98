package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const (
	defaultStaleAfter = 15 * time.Minute
	staleBatchSize    = 100
)

type StalePaymentJobParams struct {
	Logger     *logger.Logger
	Reaper     stalePaymentReaper
	StaleAfter time.Duration
}

type stalePaymentReaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// NewStalePaymentJob fails payments stuck in PROCESSING past StaleAfter.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reaper == nil {
		return nil, fmt.Errorf("payment reaper required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &stalePaymentJob{logg: params.Logger, reaper: params.Reaper, staleAfter: staleAfter}, nil
}

type stalePaymentJob struct {
	logg       *logger.Logger
	reaper     stalePaymentReaper
	staleAfter time.Duration
}

func (j *stalePaymentJob) Name() string { return "stale-payment-reaper" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	reaped, err := j.reaper.ReapStale(ctx, j.staleAfter, staleBatchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_after": j.staleAfter.String(),
		"reaped":      reaped,
	})
	if err != nil {
		return fmt.Errorf("reap stale payments: %w", err)
	}
	if reaped > 0 {
		j.logg.Warn(logCtx, "stale payments marked failed")
		return nil
	}
	j.logg.Debug(logCtx, "no stale payments")
	return nil
}
