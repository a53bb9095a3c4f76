// Command tutorctl is the operator CLI of the tutor bot.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/observability"
)

var (
	verbose bool
	cfg     *config.Config
	logger  *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tutorctl",
	Short: "Operate the tutor bot ledger and admin API",
	Long: `tutorctl works against the same environment as the bot service.

It reads .env and the process environment, so POSTGRES_DSN, SQLITE_PATH and
AUTH_JWT_SECRET select the ledger and signing key exactly as the service does.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.Logger
		if verbose {
			level.Level = "debug"
		} else if level.Level == "info" {
			level.Level = "warn"
		}
		logger, err = observability.NewLogger(level)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userSetTierCmd)
	userCmd.AddCommand(userResetCmd)

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(quoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
