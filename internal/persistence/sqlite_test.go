package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
)

func TestSQLiteMigrationsAreRerunnable(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "users.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, RunSQLiteMigrations(ctx, db.DB, logger))
	require.NoError(t, RunSQLiteMigrations(ctx, db.DB, logger))

	var count int
	require.NoError(t, db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('users','user_usage','broadcast_runs')`).Scan(&count))
	assert.Equal(t, 3, count)
	assert.NoError(t, db.Ping(ctx))
}

func TestNewSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), config.SQLiteConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDisabledBackendsReportUnavailable(t *testing.T) {
	ctx := context.Background()

	var pg *Postgres
	assert.False(t, pg.Enabled())
	assert.Error(t, pg.Ping(ctx))

	_, err := NewPostgres(ctx, config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)

	r := NewRedis(config.RedisConfig{}, zap.NewNop())
	assert.False(t, r.Enabled())
	assert.Error(t, r.Ping(ctx))
	r.Close()
}
