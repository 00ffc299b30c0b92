package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes on Redis pub/sub channels.
// The client is owned by the caller.
type RedisBus struct {
	rdb redis.UniversalClient
}

// NewRedisBus returns a RedisBus over rdb.
func NewRedisBus(rdb redis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Close() error { return nil }
