package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/db"
	"github.com/corpusd/corpusd/internal/config"
)

// NewMigrateCmd creates the migrate command (factory pattern)
func NewMigrateCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := db.Migrate(cfg.PostgresURL()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			logger.Info("migrations applied", "database", cfg.PostgresDBName)
			return nil
		},
	}
}
