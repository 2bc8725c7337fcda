package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"classhub-gateway/internal/config"
	"classhub-gateway/internal/security"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and check CSRF tokens with the configured secret",
	}
	cmd.AddCommand(tokenGenerateCmd(), tokenVerifyCmd())
	return cmd
}

// tokenManagerFromEnv builds a manager from CSRF_SECRET and CSRF_MAX_AGE,
// the same settings the gateway uses.
func tokenManagerFromEnv() (*security.TokenManager, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	tm, err := security.NewTokenManager(cfg.CSRF.Secret, cfg.CSRF.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("CSRF_SECRET: %w", err)
	}
	return tm, nil
}

func tokenGenerateCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a new token, optionally bound to a session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tm, err := tokenManagerFromEnv()
			if err != nil {
				return err
			}
			token, err := tm.Generate(sessionID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to bind the token to")
	return cmd
}

func tokenVerifyCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token and print the rejection reason, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := tokenManagerFromEnv()
			if err != nil {
				return err
			}

			if err := tm.Validate(args[0], sessionID); err != nil {
				return fmt.Errorf("token rejected: %s", security.Classify(err))
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "valid (lifetime %s)\n", tm.MaxAge().Round(time.Second))
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id the token must be bound to")
	return cmd
}
