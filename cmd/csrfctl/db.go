package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"classhub-gateway/internal/config"
	"classhub-gateway/internal/repository/postgres"
)

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.AuditWorkerFromEnv()
	if err != nil {
		return nil, err
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return config.NewPostgresConnection(connCtx, cfg.DatabaseURL, config.PoolSettings{MaxOpen: 2, MaxIdle: 1, MaxLifetime: time.Minute})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

func failuresCmd() *cobra.Command {
	var (
		since  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Count stored CSRF rejections per reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}

			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			from := time.Now().UTC().Add(-since)
			counts, err := postgres.NewSecurityEventRepository(db).CountByReasonSince(cmd.Context(), from)
			if err != nil {
				return err
			}
			return printFailures(cmd, from, counts, asJSON)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printFailures(cmd *cobra.Command, from time.Time, counts map[string]int64, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"since": from, "reasons": counts})
	}

	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "REASON\tCOUNT\n")
	for _, reason := range reasons {
		fmt.Fprintf(tw, "%s\t%d\n", reason, counts[reason])
	}
	return tw.Flush()
}
