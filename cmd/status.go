package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// NewStatusCmd creates the status command (factory pattern)
func NewStatusCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's ingestion status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document ID %q: %w", args[0], err)
			}

			s, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			doc, err := s.GetDocument(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no document with ID %s", id)
				}
				return err
			}

			fmt.Printf("Document:  %s\n", doc.DisplayName)
			fmt.Printf("Owner:     %s %s\n", doc.Owner.Kind, doc.Owner.ID)
			fmt.Printf("Status:    %s\n", doc.Status)
			if doc.Status == store.StatusFailed {
				fmt.Printf("Reason:    %s\n", doc.FailureReason)
			}
			if doc.Status == store.StatusReady {
				count, err := s.CountChunks(cmd.Context(), doc.ID)
				if err == nil {
					fmt.Printf("Chunks:    %d\n", count)
				}
			}
			fmt.Printf("Created:   %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated:   %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
