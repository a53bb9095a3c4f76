package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

// Depth is how far into the menu tree a user is.
type Depth int

const (
	DepthRoot Depth = iota
	DepthPlan
	DepthCategory
	DepthLevel
)

// Cursor is the ephemeral position of a user in the menu tree.
type Cursor struct {
	Depth    Depth           `json:"depth"`
	Tier     domain.Tier     `json:"tier,omitempty"`
	Category domain.Category `json:"category,omitempty"`
	Level    domain.Level    `json:"level,omitempty"`
}

// CursorStore keeps cursors between events. Losing one is harmless: the user restarts at
// the root.
type CursorStore interface {
	Get(ctx context.Context, userID string) (Cursor, bool, error)
	Set(ctx context.Context, userID string, c Cursor) error
}

// DefaultCursorTTL bounds how long an idle session remembers its position.
const DefaultCursorTTL = time.Hour

type memoryEntry struct {
	cursor  Cursor
	expires time.Time
}

// MemoryCursorStore is a process-local store.
type MemoryCursorStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCursorStore creates a store whose entries expire after ttl.
func NewMemoryCursorStore(ttl time.Duration) *MemoryCursorStore {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	return &MemoryCursorStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryCursorStore) Get(_ context.Context, userID string) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return Cursor{}, false, nil
	}
	if s.now().After(e.expires) {
		delete(s.entries, userID)
		return Cursor{}, false, nil
	}
	return e.cursor, true, nil
}

func (s *MemoryCursorStore) Set(_ context.Context, userID string, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// Opportunistic sweep keeps the map bounded by active users.
	if len(s.entries) > 1024 {
		for id, e := range s.entries {
			if now.After(e.expires) {
				delete(s.entries, id)
			}
		}
	}
	s.entries[userID] = memoryEntry{cursor: c, expires: now.Add(s.ttl)}
	return nil
}

// RedisCursorStore shares cursors between replicas.
type RedisCursorStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCursorStore creates a Redis-backed store.
func NewRedisCursorStore(client *redis.Client, ttl time.Duration) *RedisCursorStore {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	return &RedisCursorStore{client: client, ttl: ttl}
}

func cursorKey(userID string) string {
	return "nav:cursor:" + userID
}

func (s *RedisCursorStore) Get(ctx context.Context, userID string) (Cursor, bool, error) {
	raw, err := s.client.Get(ctx, cursorKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, false, nil
	}
	return c, true, nil
}

func (s *RedisCursorStore) Set(ctx context.Context, userID string, c Cursor) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cursorKey(userID), raw, s.ttl).Err()
}
