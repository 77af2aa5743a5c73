// Package cmd implements the corpusd command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "corpusd - scoped document ingestion and retrieval",
	Long: `corpusd ingests documents into a chunked, embedded index and answers
scoped retrieval queries: each user searches their own documents plus their
organization's.

Uploads return immediately; ingestion runs asynchronously on workers
consuming a durable job queue. Use "corpusd status" to follow progress.`,
	SilenceUsage: true,
}

// Execute loads configuration, registers all subcommands, and runs the CLI.
func Execute() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{})

	rootCmd.AddCommand(
		NewWorkerCmd(cfg, logger),
		NewUploadCmd(cfg, logger),
		NewIngestCmd(cfg, logger),
		NewSearchCmd(cfg, logger),
		NewStatusCmd(cfg, logger),
		NewDocsCmd(cfg, logger),
		NewAdminCmd(cfg, logger),
		NewMigrateCmd(cfg, logger),
		NewVersionCmd(cfg),
	)

	return rootCmd.Execute()
}
