package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/persistence"
	"github.com/spec-kit/tutor-bot/internal/repository"
	"github.com/spec-kit/tutor-bot/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect and edit ledger records",
}

var userShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print tier and usage of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(ctx context.Context, quota *service.QuotaService) error {
			return printStatus(ctx, cmd, quota, args[0])
		})
	},
}

var userSetTierCmd = &cobra.Command{
	Use:   "set-tier <user-id> <free|pro|elite>",
	Short: "Record a plan paid out of band",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := domain.ParseTier(args[1])
		if err != nil {
			return err
		}
		return withLedger(cmd.Context(), func(ctx context.Context, quota *service.QuotaService) error {
			if err := quota.SetTier(ctx, args[0], tier); err != nil {
				return err
			}
			return printStatus(ctx, cmd, quota, args[0])
		})
	},
}

var userResetCmd = &cobra.Command{
	Use:   "reset-expired",
	Short: "Reset every user whose usage period has ended",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(ctx context.Context, quota *service.QuotaService) error {
			ids, err := quota.AllUserIDs(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			count := 0
			for _, id := range ids {
				reset, err := quota.ResetIfPeriodElapsed(ctx, id, now)
				if err != nil {
					return fmt.Errorf("reset %s: %w", id, err)
				}
				if reset {
					count++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d of %d users\n", count, len(ids))
			return nil
		})
	},
}

func printStatus(ctx context.Context, cmd *cobra.Command, quota *service.QuotaService, id string) error {
	user, err := quota.Lookup(ctx, id)
	if err != nil {
		return err
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	report, err := quota.Status(ctx, id, append(cat.Categories(), domain.CategoryGeneral))
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "user:    %s", user.ID)
	if user.Username != "" {
		fmt.Fprintf(&b, " (@%s)", user.Username)
	}
	fmt.Fprintf(&b, "\ntier:    %s\n", report.Tier)
	for _, line := range report.Categories {
		limit := "unlimited"
		if line.Limit >= 0 {
			limit = fmt.Sprint(line.Limit)
		}
		fmt.Fprintf(&b, "%-9s%d/%s\n", string(line.Category)+":", line.Used, limit)
	}
	if !report.ResetsAt.IsZero() {
		fmt.Fprintf(&b, "resets:  %s\n", report.ResetsAt.Format(time.RFC3339))
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
	return err
}

// withLedger opens the configured store, applies migrations and runs fn against a
// ledger bound to it.
func withLedger(ctx context.Context, fn func(context.Context, *service.QuotaService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	repo, closeFn, err := openUsers(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	quota := service.NewQuotaService(service.QuotaDependencies{
		UserRepo: repo,
		Limits:   cfg.Quota.Limits,
		Period:   cfg.Quota.Period,
		Logger:   logger,
	})
	return fn(ctx, quota)
}

func openUsers(ctx context.Context) (repository.UserRepository, func(), error) {
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return repository.NewUserRepository(pg.PoolHandle()), pg.Close, nil
	}

	db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := persistence.RunSQLiteMigrations(ctx, db.DB, logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Debug("using sqlite ledger", zap.String("path", cfg.SQLite.Path))
	return repository.NewSQLiteUserRepository(db.DB), db.Close, nil
}
