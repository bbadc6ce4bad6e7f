// Command authctl signs an operator in to the back office and keeps the
// session on disk between invocations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backoffice/internal/platform/config"
	"backoffice/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		a           *app
		dumpMetrics bool
	)
	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Sign in to the back office",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "text")
			a, err = newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			a.orch.RestoreOnStartup(cmd.Context())
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a == nil {
				return nil
			}
			a.finish()
			if dumpMetrics {
				return a.dumpMetrics(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "print process metrics to stderr on exit")

	get := func() *app { return a }
	root.AddCommand(
		newLoginCmd(get),
		newStatusCmd(get),
		newWhoamiCmd(get),
		newTokenCmd(get),
		newRefreshCmd(get),
		newLogoutCmd(get),
		newPasswordCmd(get),
		newTwoFactorCmd(get),
	)
	return root
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
