package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter shares windows across replicas with INCR and EXPIRE.
type RedisCounter struct {
	rdb redis.UniversalClient
}

// NewRedisCounter wraps rdb. The client is owned by the caller.
func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (r *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.rdb == nil {
		return 0, 0, fmt.Errorf("guard: redis client is nil")
	}

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment window: %w", err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("set window ttl: %w", err)
		}
	}

	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read window ttl: %w", err)
	}
	if ttl < 0 {
		// A key left without expiry (crash between INCR and EXPIRE) would block forever.
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("repair window ttl: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}
