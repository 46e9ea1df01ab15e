package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = time.Hour

// Locker grants one cron-worker replica at a time the right to run a job. ttl bounds
// how long a crashed holder keeps the others out.
type Locker interface {
	TryLock(ctx context.Context, job string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

type lockBackend interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisLocker stores a random owner token per job key so only the holder can unlock.
type RedisLocker struct {
	backend lockBackend
	env     string
}

// RedisLocks keys locks `<prefix>:lock:cron:<env>:<job>` so environments sharing a
// Redis do not block each other.
func RedisLocks(backend lockBackend, env string) *RedisLocker {
	if env == "" {
		env = "local"
	}
	return &RedisLocker{backend: backend, env: env}
}

func (l *RedisLocker) TryLock(ctx context.Context, job string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if l == nil || l.backend == nil {
		return nil, false, errors.New("redis locker not configured")
	}
	if job == "" {
		return nil, false, errors.New("lock needs a job name")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	key := l.backend.LockKey(fmt.Sprintf("cron:%s:%s", l.env, job))
	token := uuid.NewString()

	ok, err := l.backend.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	// An expired lock re-acquired by another replica carries a different token and
	// survives this unlock.
	unlock := func(ctx context.Context) error {
		_, err := l.backend.DeleteIfEquals(ctx, key, token)
		return err
	}
	return unlock, true, nil
}
