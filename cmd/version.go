package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// NewVersionCmd creates the version command (factory pattern)
func NewVersionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Printf("corpusd %s\n", AppVersion)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
			fmt.Println()

			fmt.Println("Configuration:")
			fmt.Printf("  Provider:  %s\n", cfg.Provider)
			fmt.Printf("  Embedder:  %s (dimension %d)\n", cfg.EmbedderModel, cfg.EmbeddingDimension)
			fmt.Printf("  Database:  %s@%s:%d/%s\n",
				cfg.PostgresUser, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
			fmt.Printf("  Queue:     %s\n", cfg.NATSURL)
			fmt.Printf("  Blob dir:  %s\n", cfg.BlobDir)

			if cfg.Provider == config.ProviderGemini {
				if key := os.Getenv("GEMINI_API_KEY"); key != "" {
					fmt.Println("  GEMINI_API_KEY: configured")
				} else {
					fmt.Println("  GEMINI_API_KEY: not set")
				}
			}
			return nil
		},
	}
}
