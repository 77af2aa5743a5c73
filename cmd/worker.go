package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/app"
	"github.com/corpusd/corpusd/internal/config"
)

// NewWorkerCmd creates the worker command (factory pattern)
func NewWorkerCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run an ingestion worker",
		Long: `Run an ingestion worker consuming jobs from the durable queue.

Workers share a queue group, so running more of them increases throughput
without duplicating work. Stop with SIGINT or SIGTERM; in-flight jobs are
drained before exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Setup(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing application: %w", err)
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("shutdown error", "error", err)
				}
			}()

			return a.RunWorker(ctx)
		},
	}
}
