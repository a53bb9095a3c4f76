package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

// UserRepository is the persistence side of the quota ledger. Every method is a single
// atomic statement or transaction; policy (limits, periods) lives in the service.
type UserRepository interface {
	// Ensure inserts a free-tier record when id is unseen and reports whether it did.
	Ensure(ctx context.Context, id, username string, now time.Time) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetTier(ctx context.Context, id string, tier domain.Tier) error
	// ResetPeriod zeroes all counters and moves the anchor to next, only if the stored
	// anchor still equals prev.
	ResetPeriod(ctx context.Context, id string, prev, next time.Time) (bool, error)
	// Consume increments usage[category] when it is below limitFor(tier).
	Consume(ctx context.Context, id string, category domain.Category, limitFor func(domain.Tier) int) (domain.ConsumeResult, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Ensure(ctx context.Context, id, username string, now time.Time) (bool, error) {
	const query = `
        INSERT INTO users (user_id, username, tier, period_anchor, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4, $4)
        ON CONFLICT (user_id) DO NOTHING`

	cmd, err := r.pool.Exec(ctx, query, id, username, domain.TierFree, now.Truncate(time.Microsecond))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const userQuery = `
        SELECT user_id, username, tier, period_anchor, created_at, updated_at
        FROM users WHERE user_id=$1`
	const usageQuery = `SELECT category, used FROM user_usage WHERE user_id=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, userQuery, id).Scan(
		&user.ID,
		&user.Username,
		&user.Tier,
		&user.PeriodAnchor,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, usageQuery, id)
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

func (r *userRepository) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	const query = `UPDATE users SET tier=$1, updated_at=NOW() WHERE user_id=$2`

	cmd, err := r.pool.Exec(ctx, query, tier, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) ResetPeriod(ctx context.Context, id string, prev, next time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `
        UPDATE users SET period_anchor=$1, updated_at=NOW()
        WHERE user_id=$2 AND period_anchor=$3`,
		next.Truncate(time.Microsecond), id, prev)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE user_usage SET used=0 WHERE user_id=$1`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRepository) Consume(ctx context.Context, id string, category domain.Category, limitFor func(domain.Tier) int) (domain.ConsumeResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ConsumeResult{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The row lock serializes every consumption for this user until commit.
	var tier domain.Tier
	if err := tx.QueryRow(ctx, `SELECT tier FROM users WHERE user_id=$1 FOR UPDATE`, id).Scan(&tier); err != nil {
		return domain.ConsumeResult{}, err
	}
	result := domain.ConsumeResult{Tier: tier, Limit: limitFor(tier)}

	if _, err := tx.Exec(ctx, `
        INSERT INTO user_usage (user_id, category, used) VALUES ($1, $2, 0)
        ON CONFLICT (user_id, category) DO NOTHING`, id, category); err != nil {
		return domain.ConsumeResult{}, err
	}

	err = tx.QueryRow(ctx, `
        UPDATE user_usage SET used = used + 1
        WHERE user_id=$1 AND category=$2 AND ($3 < 0 OR used < $3)
        RETURNING used`, id, category, result.Limit).Scan(&result.Used)
	switch {
	case err == nil:
		result.Granted = true
		if _, err := tx.Exec(ctx, `UPDATE users SET updated_at=NOW() WHERE user_id=$1`, id); err != nil {
			return domain.ConsumeResult{}, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, `
            SELECT used FROM user_usage WHERE user_id=$1 AND category=$2`, id, category).Scan(&result.Used); err != nil {
			return domain.ConsumeResult{}, err
		}
	default:
		return domain.ConsumeResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ConsumeResult{}, err
	}
	return result, nil
}

func (r *userRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM users ORDER BY created_at, user_id`)
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
