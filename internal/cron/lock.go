package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// Locker hands out per-job exclusive leases so two cron workers never run the
// same job concurrently while different jobs still proceed independently.
type Locker interface {
	Acquire(ctx context.Context, job string) (release func(context.Context) error, ok bool, err error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	LockKey(name string) string
}

// RedisLocker implements Locker with SETNX plus a TTL that bounds a crashed holder.
// Release is an owner-checked delete, so a late release never frees another worker's lease.
type RedisLocker struct {
	client redisStore
	prefix string
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed locker. prefix namespaces the job keys.
func NewRedisLocker(client redisStore, prefix string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if prefix == "" {
		return nil, errors.New("lock prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (func(context.Context) error, bool, error) {
	key := l.client.LockKey(l.prefix + ":" + job)
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		// false means the lease expired and may now belong to another worker; nothing to undo.
		if _, err := l.client.ReleaseLock(ctx, key, owner); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
