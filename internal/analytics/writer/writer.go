package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/trackvault-backend/internal/analytics/types"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	SalesTable  string
	BatchSize   int
	RetryPolicy RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// SalesWriter streams sales rows into BigQuery. Every row carries its InsertID so
// a retried insert or a redelivered event does not double count revenue.
type SalesWriter struct {
	client tableInserter
	table  string
	batch  int
	retry  RetryPolicy

	pending []types.SalesEventRow
	seen    map[string]struct{}
}

func New(client tableInserter, cfg Config) (*SalesWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.SalesTable)
	if table == "" {
		return nil, errors.New("sales table is required")
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	retry.MaximumBackoff = max(retry.MaximumBackoff, retry.InitialBackoff)

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &SalesWriter{
		client: client,
		table:  table,
		batch:  batch,
		retry:  retry,
		seen:   make(map[string]struct{}),
	}, nil
}

// InsertSales queues rows, dropping any whose InsertID is already queued, and
// flushes once the batch is full.
func (w *SalesWriter) InsertSales(ctx context.Context, rows ...types.SalesEventRow) error {
	for _, row := range rows {
		id := row.InsertID()
		if _, dup := w.seen[id]; dup {
			continue
		}
		w.seen[id] = struct{}{}
		w.pending = append(w.pending, row)
	}
	if len(w.pending) >= w.batch {
		return w.Flush(ctx)
	}
	return nil
}

// Flush streams the queued rows. On failure they stay queued for the next call.
func (w *SalesWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	savers := make([]any, len(w.pending))
	for i := range w.pending {
		savers[i] = &cbigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].InsertID()}
	}
	if err := w.put(ctx, savers); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	clear(w.seen)
	return nil
}

func (w *SalesWriter) put(ctx context.Context, rows []any) error {
	wait := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !retryable(err) {
			return fmt.Errorf("stream %d sales rows after %d attempt(s): %w", len(rows), attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, w.retry.MaximumBackoff)
	}
}

// retryable reports whether every error wrapped in err is transient. Row level
// failures are only retried when all of them are.
func retryable(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(multi)
	}

	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		if len(put) == 0 {
			return false
		}
		for _, rowErr := range put {
			if !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allRetryable(errs cbigquery.MultiError) bool {
	if len(errs) == 0 {
		return false
	}
	for _, inner := range errs {
		if !retryable(inner) {
			return false
		}
	}
	return true
}
