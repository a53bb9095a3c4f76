package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FiredMarker records which broadcast days have been claimed. Claim returns true only
// for the first caller of a day. repository.BroadcastRunRepository satisfies it for the
// ledger store.
type FiredMarker interface {
	Claim(ctx context.Context, day, runID string) (bool, error)
}

// processMarker is the fallback without a shared marker: the worker's own day key is the
// only record, so a restart may send twice.
type processMarker struct{}

func (processMarker) Claim(context.Context, string, string) (bool, error) { return true, nil }

// RedisMarker claims days across every process sharing the Redis instance.
type RedisMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMarker creates a marker whose keys expire after ttl.
func NewRedisMarker(client *redis.Client, ttl time.Duration) *RedisMarker {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisMarker{client: client, ttl: ttl}
}

func (m *RedisMarker) Claim(ctx context.Context, day, runID string) (bool, error) {
	return m.client.SetNX(ctx, "broadcast:fired:"+day, runID, m.ttl).Result()
}
