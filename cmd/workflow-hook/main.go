// workflow-hook runs queued workflow submissions as Docker jobs and reports
// their progress back to the submission queues.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"workflowhook/internal/config"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	envFile  string
	svcCfg   *config.ServiceConfig
	closeLog = func() error { return nil }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "workflow-hook",
		Short: "Run queued workflow submissions as Docker jobs",
		Long: `workflow-hook polls submission queues, launches a workflow engine container
for every received submission and keeps each submission's status, logs and
notifications in step with its container until the job ends.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			svcCfg = config.LoadServiceConfig()
			var logger *slog.Logger
			logger, closeLog = config.SetupLogger(svcCfg.LogFile, config.ParseLevel(svcCfg.LogLevel))
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment overrides (ignored if missing)")

	root.AddCommand(newRunCmd(), newJobsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation loop and the admin API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context())
		},
	}
}
