package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/blob"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// NewDocsCmd creates the docs command (factory pattern)
func NewDocsCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents",
	}

	docsCmd.AddCommand(newDocsListCmd(cfg, logger))
	docsCmd.AddCommand(newDocsDeleteCmd(cfg, logger))

	return docsCmd
}

func newDocsListCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var owner ownerFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := owner.owner()
			if err != nil {
				return err
			}

			s, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			docs, err := s.ListDocuments(cmd.Context(), o)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					d.ID, d.DisplayName, d.Status, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	owner.register(cmd)
	return cmd
}

func newDocsDeleteCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document, its chunks, and its blob",
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

			if err := s.DeleteDocument(cmd.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no document with ID %s", id)
				}
				return err
			}

			blobs, err := blob.NewFileStore(cfg.BlobDir, logger)
			if err == nil {
				if err := blobs.Delete(cmd.Context(), id); err != nil {
					logger.Warn("failed to delete blob", "id", id, "error", err)
				}
				_ = blobs.Close()
			}

			fmt.Printf("Deleted %s\n", id)
			return nil
		},
	}
}
