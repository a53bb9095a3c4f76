package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/service"
)

// migrateCmd applies schema migrations to the configured store
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ledger schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd.Context(), func(context.Context, *service.QuotaService) error {
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		})
	},
}

var quoteDate string

// quoteCmd previews the broadcast quote of a day
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print the motivation quote of a day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day := time.Now().In(cfg.Broadcast.Location)
		if quoteDate != "" {
			parsed, err := time.ParseInLocation("2006-01-02", quoteDate, cfg.Broadcast.Location)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			day = parsed
		}
		fmt.Fprintln(cmd.OutOrStdout(), catalog.QuoteFor(day))
		return nil
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteDate, "date", "", "Day to preview as YYYY-MM-DD (default: today in BROADCAST_TIMEZONE)")
}
