package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker takes job locks in Redis so that only one instance runs a
// given tick.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker returns a locker backed by rdb.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	release := func() {
		// The run may outlive ctx; release with a fresh context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("releasing job lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}
