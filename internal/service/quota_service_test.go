package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/persistence"
	"github.com/spec-kit/tutor-bot/internal/repository"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSQLiteUsers(t *testing.T) repository.UserRepository {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, db.DB, logger))
	return repository.NewSQLiteUserRepository(db.DB)
}

func newTestQuota(t *testing.T, clock *fakeClock, dispatcher events.Dispatcher) *QuotaService {
	t.Helper()
	return NewQuotaService(QuotaDependencies{
		UserRepo:   newSQLiteUsers(t),
		Limits:     config.DefaultTierLimits(),
		Period:     24 * time.Hour,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Clock:      clock.Now,
	})
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dispatcher := events.NewInMemoryDispatcher()
	var created atomic.Int32
	dispatcher.Subscribe(events.EventUserCreated, func(context.Context, events.Event) error {
		created.Add(1)
		return nil
	})
	quota := newTestQuota(t, clock, dispatcher)

	user, err := quota.GetOrCreate(ctx, "100", "neo")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, user.Tier)
	assert.Equal(t, 0, user.Used(domain.CategoryAI))
	assert.True(t, user.PeriodAnchor.Equal(clock.Now()))

	_, err = quota.GetOrCreate(ctx, "100", "neo")
	require.NoError(t, err)
	assert.Equal(t, int32(1), created.Load())
}

func TestTryConsumeIsMonotonicAndBounded(t *testing.T) {
	ctx := context.Background()
	quota := newTestQuota(t, newFakeClock(), nil)

	prev := 0
	for i := 0; i < 8; i++ {
		res, err := quota.TryConsume(ctx, "1", domain.CategoryBusiness)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Used, prev)
		assert.LessOrEqual(t, res.Used, 5)
		assert.Equal(t, i < 5, res.Granted, "attempt %d", i)
		prev = res.Used
	}
}

func TestTryConsumeGrantsExactlyOneAtLimitMinusOne(t *testing.T) {
	ctx := context.Background()
	quota := newTestQuota(t, newFakeClock(), nil)

	for i := 0; i < 4; i++ {
		res, err := quota.TryConsume(ctx, "9", domain.CategoryAI)
		require.NoError(t, err)
		require.True(t, res.Granted)
	}

	var (
		granted atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := quota.TryConsume(ctx, "9", domain.CategoryAI)
			if assert.NoError(t, err) && res.Granted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	user, err := quota.GetOrCreate(ctx, "9", "")
	require.NoError(t, err)
	assert.Equal(t, 5, user.Used(domain.CategoryAI))
}

func TestResetIfPeriodElapsedRunsOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	quota := newTestQuota(t, clock, nil)

	for i := 0; i < 3; i++ {
		_, err := quota.TryConsume(ctx, "5", domain.CategoryCrypto)
		require.NoError(t, err)
	}

	reset, err := quota.ResetIfPeriodElapsed(ctx, "5", clock.Now().Add(23*time.Hour))
	require.NoError(t, err)
	assert.False(t, reset)

	later := clock.Now().Add(49 * time.Hour)
	reset, err = quota.ResetIfPeriodElapsed(ctx, "5", later)
	require.NoError(t, err)
	assert.True(t, reset)

	reset, err = quota.ResetIfPeriodElapsed(ctx, "5", later)
	require.NoError(t, err)
	assert.False(t, reset)

	clock.Advance(49 * time.Hour)
	user, err := quota.GetOrCreate(ctx, "5", "")
	require.NoError(t, err)
	assert.Equal(t, 0, user.Used(domain.CategoryCrypto))
	// Whole periods only: 09:00 + 2 days.
	assert.True(t, user.PeriodAnchor.Equal(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)), user.PeriodAnchor)
}

func TestLazyResetOnConsume(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	quota := newTestQuota(t, clock, nil)

	for i := 0; i < 5; i++ {
		_, err := quota.TryConsume(ctx, "2", domain.CategoryAI)
		require.NoError(t, err)
	}
	res, err := quota.TryConsume(ctx, "2", domain.CategoryAI)
	require.NoError(t, err)
	assert.False(t, res.Granted)

	clock.Advance(24 * time.Hour)
	res, err = quota.TryConsume(ctx, "2", domain.CategoryAI)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, 1, res.Used)
}

func TestSetTierKeepsCounters(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	var changes []events.TierChangedPayload
	dispatcher.Subscribe(events.EventTierChanged, func(_ context.Context, e events.Event) error {
		changes = append(changes, e.Payload.(events.TierChangedPayload))
		return nil
	})
	quota := newTestQuota(t, newFakeClock(), dispatcher)

	for i := 0; i < 5; i++ {
		_, err := quota.TryConsume(ctx, "3", domain.CategoryAI)
		require.NoError(t, err)
	}
	require.NoError(t, quota.SetTier(ctx, "3", domain.TierPro))
	require.NoError(t, quota.SetTier(ctx, "3", domain.TierPro))

	user, err := quota.GetOrCreate(ctx, "3", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, user.Tier)
	assert.Equal(t, 5, user.Used(domain.CategoryAI))
	require.Len(t, changes, 1)
	assert.Equal(t, events.TierChangedPayload{OldTier: domain.TierFree, NewTier: domain.TierPro}, changes[0])

	res, err := quota.TryConsume(ctx, "3", domain.CategoryAI)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, 6, res.Used)
	assert.Equal(t, 15, res.Limit)
}

func TestSetTierErrors(t *testing.T) {
	ctx := context.Background()
	quota := newTestQuota(t, newFakeClock(), nil)

	err := quota.SetTier(ctx, "nobody", domain.TierElite)
	assert.True(t, errorutil.IsCode(err, errorutil.CodeNotFound))

	_, err = quota.GetOrCreate(ctx, "1", "")
	require.NoError(t, err)
	err = quota.SetTier(ctx, "1", domain.Tier("platinum"))
	assert.True(t, errorutil.IsCode(err, errorutil.CodeValidationFailed))
}

func TestStatusReportsLimits(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	quota := newTestQuota(t, clock, nil)

	_, err := quota.TryConsume(ctx, "4", domain.CategoryCrypto)
	require.NoError(t, err)

	report, err := quota.Status(ctx, "4", []domain.Category{domain.CategoryAI, domain.CategoryCrypto})
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, report.Tier)
	assert.Equal(t, []domain.CategoryUsage{
		{Category: domain.CategoryAI, Used: 0, Limit: 5},
		{Category: domain.CategoryCrypto, Used: 1, Limit: 5},
	}, report.Categories)
	assert.True(t, report.ResetsAt.Equal(clock.Now().Add(24*time.Hour)))
}

type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) Ensure(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("database is locked")
}

func (failingUsers) ListIDs(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestStorageFailuresAreStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	quota := NewQuotaService(QuotaDependencies{UserRepo: failingUsers{}, Period: time.Hour})

	_, err := quota.TryConsume(ctx, "1", domain.CategoryAI)
	assert.True(t, errorutil.IsCode(err, errorutil.CodeStorageUnavailable))

	_, err = quota.AllUserIDs(ctx)
	assert.True(t, errorutil.IsCode(err, errorutil.CodeStorageUnavailable))
}

func TestAllUserIDs(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	quota := newTestQuota(t, clock, nil)
	for _, id := range []string{"a", "b"} {
		_, err := quota.GetOrCreate(ctx, id, "")
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	ids, err := quota.AllUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
