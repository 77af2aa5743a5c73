package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/queue"
	"github.com/corpusd/corpusd/internal/store"
)

// NewIngestCmd creates the ingest command (factory pattern)
func NewIngestCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <document-id>",
		Short: "Schedule ingestion for an existing document",
		Long: `Enqueue an ingestion job for a document that is already uploaded.

Normally uploads enqueue their own job; use this to re-drive a document whose
job exhausted its delivery attempts. Re-ingesting a ready document is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document ID %q: %w", args[0], err)
			}

			st, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			doc, err := st.GetDocument(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no document with ID %s", id)
				}
				return err
			}

			q, err := queue.Connect(cfg.NATSURL, queue.Config{
				MaxDeliver: cfg.QueueMaxDeliver,
				AckWait:    time.Duration(cfg.QueueAckWaitSecs) * time.Second,
			}, logger)
			if err != nil {
				return fmt.Errorf("connecting to queue: %w", err)
			}
			defer func() {
				_ = q.Close()
			}()

			if err := q.Enqueue(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Printf("Scheduled ingestion for %q (%s)\n", doc.DisplayName, doc.ID)
			return nil
		},
	}
}
