// Command csrfctl is the operator tool for the gateway: it mints and checks
// CSRF tokens, applies migrations and reports rejected requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "csrfctl",
		Short:         "ClassHub gateway operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		tokenCmd(),
		migrateCmd(),
		failuresCmd(),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
