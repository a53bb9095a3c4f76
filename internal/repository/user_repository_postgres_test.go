package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/persistence"
)

// newPostgres connects to POSTGRES_TEST_DSN, migrated. Tests use fresh uuid keys so they
// can share a database.
func newPostgres(t *testing.T) *persistence.Postgres {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	logger := zap.NewNop()

	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 20}, logger)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pg.PoolHandle(), logger))
	return pg
}

func TestPostgresConsumeIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newPostgres(t).PoolHandle())
	id := uuid.NewString()
	_, err := repo.Ensure(ctx, id, "", time.Now())
	require.NoError(t, err)

	const limit = 5
	for i := 0; i < limit-1; i++ {
		res, err := repo.Consume(ctx, id, domain.CategoryAI, fixedLimit(limit))
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
			res, err := repo.Consume(ctx, id, domain.CategoryAI, fixedLimit(limit))
			if assert.NoError(t, err) && res.Granted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	user, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, limit, user.Used(domain.CategoryAI))
}

func TestPostgresResetPeriodCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newPostgres(t).PoolHandle())
	id := uuid.NewString()
	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.Ensure(ctx, id, "", anchor)
	require.NoError(t, err)
	_, err = repo.Consume(ctx, id, domain.CategoryCrypto, fixedLimit(5))
	require.NoError(t, err)

	next := anchor.Add(24 * time.Hour)
	reset, err := repo.ResetPeriod(ctx, id, anchor, next)
	require.NoError(t, err)
	assert.True(t, reset)
	reset, err = repo.ResetPeriod(ctx, id, anchor, next)
	require.NoError(t, err)
	assert.False(t, reset)

	user, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Used(domain.CategoryCrypto))
	assert.True(t, user.PeriodAnchor.Equal(next))
}

func TestPostgresBroadcastRunClaimedOnce(t *testing.T) {
	ctx := context.Background()
	runs := NewBroadcastRunRepository(newPostgres(t).PoolHandle())
	day := "test-" + uuid.NewString()

	claimed, err := runs.Claim(ctx, day, "run-a")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = runs.Claim(ctx, day, "run-b")
	require.NoError(t, err)
	assert.False(t, claimed)
}
