package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker is a SETNX-based advisory lock. The upload pipeline holds it
// across the similarity scan and the persist stage so two concurrent
// near-duplicate uploads cannot both pass the check against a corpus that
// predates either write.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
}

// NewRedisLocker returns a locker with sane defaults for upload serialization.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		Client: client,
		TTL:    2 * time.Minute,
		Retry:  100 * time.Millisecond,
	}
}

// Acquire blocks until the lock named key is held or ctx is done. The
// returned release func deletes the lock only if this caller still owns it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	token := uuid.NewString()
	lockKey := "lock:" + key

	for {
		ok, err := l.Client.SetNX(ctx, lockKey, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", lockKey, ctx.Err())
		case <-time.After(l.Retry):
		}
	}

	release := func() {
		// Delete only our own token; an expired lock may have been re-taken.
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		script.Run(context.Background(), l.Client, []string{lockKey}, token)
	}
	return release, nil
}
