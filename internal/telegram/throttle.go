package telegram

import (
	"context"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttle decides whether a user may send another event right now.
type Throttle interface {
	Allow(ctx context.Context, userID string) bool
}

// NewThrottle limits each user to perMinute events. With a Redis client the budget is
// shared across replicas; a Redis failure falls back to the local limiter. A
// non-positive perMinute disables limiting.
func NewThrottle(client *redis.Client, perMinute int, logger *zap.Logger) Throttle {
	if perMinute <= 0 {
		return unlimited{}
	}
	local := newLocalThrottle(perMinute)
	if client == nil {
		return local
	}
	return &redisThrottle{
		limiter:  redis_rate.NewLimiter(client),
		limit:    redis_rate.PerMinute(perMinute),
		fallback: local,
		logger:   logger,
	}
}

type unlimited struct{}

func (unlimited) Allow(context.Context, string) bool { return true }

type redisThrottle struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	fallback *localThrottle
	logger   *zap.Logger
}

func (t *redisThrottle) Allow(ctx context.Context, userID string) bool {
	res, err := t.limiter.Allow(ctx, "ratelimit:user:"+userID, t.limit)
	if err != nil {
		t.logger.Warn("rate limiter error, using local limiter", zap.String("user_id", userID), zap.Error(err))
		return t.fallback.Allow(ctx, userID)
	}
	return res.Allowed > 0
}

type localEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type localThrottle struct {
	mu        sync.Mutex
	perMinute int
	entries   map[string]*localEntry
	now       func() time.Time
}

func newLocalThrottle(perMinute int) *localThrottle {
	return &localThrottle{perMinute: perMinute, entries: make(map[string]*localEntry), now: time.Now}
}

func (t *localThrottle) Allow(_ context.Context, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	if len(t.entries) > 4096 {
		for id, e := range t.entries {
			if now.Sub(e.lastAccess) > 10*time.Minute {
				delete(t.entries, id)
			}
		}
	}

	e, ok := t.entries[userID]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(rate.Limit(float64(t.perMinute)/60), t.perMinute)}
		t.entries[userID] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}
