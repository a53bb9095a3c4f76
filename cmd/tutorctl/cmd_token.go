package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/tutor-bot/internal/auth"
)

var (
	tokenRole       string
	tokenTTLMinutes int
)

// tokenCmd issues an operator token for the admin API
var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue a bearer token for the admin API",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleSupport), "Role to grant (support or admin)")
	tokenCmd.Flags().IntVar(&tokenTTLMinutes, "ttl", 0, "Token lifetime in minutes (default: AUTH_ACCESS_TOKEN_TTL_MINUTES)")
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl := cfg.Auth.AccessTokenTTLMinutes
	if tokenTTLMinutes > 0 {
		ttl = tokenTTLMinutes
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl)
	token, expiresAt, err := tokens.GenerateToken(args[0], auth.Role(tokenRole))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
