package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

type sqliteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository returns a SQLite-backed implementation. Timestamps are stored
// as unix milliseconds. The handle is expected to allow a single open connection.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) Ensure(ctx context.Context, id, username string, now time.Time) (bool, error) {
	const query = `
        INSERT INTO users (user_id, username, tier, period_anchor, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id) DO NOTHING`

	ms := now.UnixMilli()
	res, err := r.db.ExecContext(ctx, query, id, username, string(domain.TierFree), ms, ms, ms)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const userQuery = `
        SELECT user_id, username, tier, period_anchor, created_at, updated_at
        FROM users WHERE user_id=?`
	const usageQuery = `SELECT category, used FROM user_usage WHERE user_id=?`

	var (
		user                         domain.User
		tier                         string
		anchor, createdAt, updatedAt int64
	)
	if err := r.db.QueryRowContext(ctx, userQuery, id).Scan(
		&user.ID,
		&user.Username,
		&tier,
		&anchor,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	user.Tier = domain.Tier(tier)
	user.PeriodAnchor = time.UnixMilli(anchor).UTC()
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	rows, err := r.db.QueryContext(ctx, usageQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	user.Usage = make(map[domain.Category]int)
	for rows.Next() {
		var (
			category string
			used     int
		)
		if err := rows.Scan(&category, &used); err != nil {
			return nil, err
		}
		user.Usage[domain.Category(category)] = used
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *sqliteUserRepository) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET tier=?, updated_at=? WHERE user_id=?`,
		string(tier), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *sqliteUserRepository) ResetPeriod(ctx context.Context, id string, prev, next time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
        UPDATE users SET period_anchor=?, updated_at=?
        WHERE user_id=? AND period_anchor=?`,
		next.UnixMilli(), time.Now().UnixMilli(), id, prev.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE user_usage SET used=0 WHERE user_id=?`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *sqliteUserRepository) Consume(ctx context.Context, id string, category domain.Category, limitFor func(domain.Tier) int) (domain.ConsumeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ConsumeResult{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	var tier string
	if err := tx.QueryRowContext(ctx, `SELECT tier FROM users WHERE user_id=?`, id).Scan(&tier); err != nil {
		return domain.ConsumeResult{}, err
	}
	result := domain.ConsumeResult{Tier: domain.Tier(tier), Limit: limitFor(domain.Tier(tier))}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO user_usage (user_id, category, used) VALUES (?, ?, 0)
        ON CONFLICT (user_id, category) DO NOTHING`, id, string(category)); err != nil {
		return domain.ConsumeResult{}, err
	}

	err = tx.QueryRowContext(ctx, `
        UPDATE user_usage SET used = used + 1
        WHERE user_id=? AND category=? AND (? < 0 OR used < ?)
        RETURNING used`, id, string(category), result.Limit, result.Limit).Scan(&result.Used)
	switch {
	case err == nil:
		result.Granted = true
		if _, err := tx.ExecContext(ctx, `UPDATE users SET updated_at=? WHERE user_id=?`, time.Now().UnixMilli(), id); err != nil {
			return domain.ConsumeResult{}, err
		}
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, `
            SELECT used FROM user_usage WHERE user_id=? AND category=?`, id, string(category)).Scan(&result.Used); err != nil {
			return domain.ConsumeResult{}, err
		}
	default:
		return domain.ConsumeResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.ConsumeResult{}, err
	}
	return result, nil
}

func (r *sqliteUserRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
