package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BroadcastRunRepository records which broadcast days have been sent. Claim inserts the
// day and reports true only for the first caller, across restarts and replicas sharing
// the ledger store.
type BroadcastRunRepository interface {
	Claim(ctx context.Context, day, runID string) (bool, error)
}

type broadcastRunRepository struct {
	pool *pgxpool.Pool
}

// NewBroadcastRunRepository returns a Postgres-backed implementation.
func NewBroadcastRunRepository(pool *pgxpool.Pool) BroadcastRunRepository {
	return &broadcastRunRepository{pool: pool}
}

func (r *broadcastRunRepository) Claim(ctx context.Context, day, runID string) (bool, error) {
	const query = `
        INSERT INTO broadcast_runs (day, run_id, claimed_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (day) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, day, runID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type sqliteBroadcastRunRepository struct {
	db *sql.DB
}

// NewSQLiteBroadcastRunRepository returns a SQLite-backed implementation.
func NewSQLiteBroadcastRunRepository(db *sql.DB) BroadcastRunRepository {
	return &sqliteBroadcastRunRepository{db: db}
}

func (r *sqliteBroadcastRunRepository) Claim(ctx context.Context, day, runID string) (bool, error) {
	const query = `
        INSERT INTO broadcast_runs (day, run_id, claimed_at)
        VALUES (?, ?, ?)
        ON CONFLICT (day) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, day, runID, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
