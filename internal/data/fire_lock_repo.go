package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// FireLockPrefix namespaces fire locks in Redis.
const FireLockPrefix = "refresh:fire:"

// RedisFireLocker grants one holder per key using SET NX with a TTL.
// Passes on different replicas that see the same (job, minute) race on the key.
type RedisFireLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisFireLocker creates a RedisFireLocker with the default key prefix.
func NewRedisFireLocker(client redis.UniversalClient) *RedisFireLocker {
	return &RedisFireLocker{client: client, prefix: FireLockPrefix}
}

// Acquire reports whether this caller set the key.
func (l *RedisFireLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}
	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Clear removes every fire lock and returns how many keys were deleted.
func (l *RedisFireLocker) Clear(ctx context.Context) (int64, error) {
	var deleted int64
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 200).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		deleted += n
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}
