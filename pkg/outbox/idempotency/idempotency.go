// Package idempotency dedupes Pub/Sub deliveries per consumer by event ID.
//
// A delivery first claims the event with a short processing lease. When the
// handler succeeds the marker is upgraded to a long-lived "done" marker; when it
// fails the marker is released so the redelivery is handled. A worker that dies
// mid-handler leaves only the lease behind, which expires on its own.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/trackvault-backend/pkg/redis"
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// Status is the outcome of Claim.
type Status int

const (
	// Claimed: this delivery owns the event and must Complete or Release it.
	Claimed Status = iota
	// InFlight: another delivery holds the processing lease.
	InFlight
	// Done: the event was already handled successfully.
	Done
)

func (s Status) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	}
	return "unknown"
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keeps per-consumer markers under tv:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store store
	lease time.Duration
	ttl   time.Duration
}

func NewManager(s store, lease, ttl time.Duration) (*Manager, error) {
	var errs error
	if s == nil {
		errs = multierr.Append(errs, errors.New("idempotency store is required"))
	}
	if lease <= 0 {
		errs = multierr.Append(errs, errors.New("processing lease must be positive"))
	}
	if ttl < lease {
		errs = multierr.Append(errs, fmt.Errorf("done ttl %s is shorter than the processing lease %s", ttl, lease))
	}
	if errs != nil {
		return nil, errs
	}
	return &Manager{store: s, lease: lease, ttl: ttl}, nil
}

// Claim tries to take the processing lease for eventID.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Status, error) {
	key, err := markerKey(m.store, consumer, eventID)
	if err != nil {
		return 0, err
	}
	ok, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return 0, err
	}
	if ok {
		return Claimed, nil
	}

	current, err := m.store.Get(ctx, key)
	switch {
	case redis.IsMiss(err):
		// The lease expired between SETNX and GET; let the redelivery retry.
		return InFlight, nil
	case err != nil:
		return 0, err
	case current == markerDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete records a successful handling so later redeliveries are skipped.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := markerKey(m.store, consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release drops the lease after a failed handling.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := markerKey(m.store, consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func markerKey(s store, consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return s.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
