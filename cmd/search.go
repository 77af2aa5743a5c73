package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/app"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// NewSearchCmd creates the search command (factory pattern)
func NewSearchCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var userID string
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the documents in a user's scope",
		Long: `Search the chunks of every document the user can see: their own
documents plus their organization's. Results are ranked by vector distance,
closest first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid user ID %q: %w", userID, err)
			}
			query := strings.Join(args, " ")

			a, err := app.Setup(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing application: %w", err)
			}
			defer func() {
				_ = a.Close()
			}()

			matches, err := a.Service.Search(cmd.Context(), uid, query, k)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("unknown user %s", uid)
				}
				return err
			}

			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for i, m := range matches {
				fmt.Printf("%2d. [%.4f] document %s chunk %s\n", i+1, m.Score, m.DocumentID, m.ChunkID)
				fmt.Printf("    %s\n", excerpt(m.Content, 160))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "searching user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().IntVarP(&k, "top", "k", config.DefaultSearchLimit, "number of results")
	return cmd
}

// excerpt truncates s to max runes for terminal display.
func excerpt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
