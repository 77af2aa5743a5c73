// Package ingest runs the document ingestion pipeline: claim the document,
// fetch its blob, split the text into spans, embed each span, and persist
// chunks and vectors atomically.
//
// Process is safe to run multiple times for the same document. The queue
// delivers jobs at least once, so every step either tolerates repetition or
// is guarded by a status compare-and-swap in the store. Permanent failures
// are recorded on the document and the job is acknowledged; only transient
// failures propagate to the queue for redelivery.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/chunker"
	"github.com/corpusd/corpusd/internal/store"
)

// BlobFetcher retrieves uploaded document content. Any error is treated as
// transient; a blob written on another host may simply not be visible yet.
type BlobFetcher interface {
	Fetch(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Embedder turns text spans into vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore is the subset of store operations the worker needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	ClaimDocument(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []store.Chunk) error
}

// Config controls pipeline behavior.
type Config struct {
	// ChunkSize is the maximum span length in runes.
	ChunkSize int

	// EmbedRetries is how many times a failed embedding call is retried
	// before the document is marked failed.
	EmbedRetries int

	// embedBackoff overrides the retry backoff in tests.
	embedBackoff time.Duration
}

// Worker executes ingestion jobs.
type Worker struct {
	store    DocumentStore
	blobs    BlobFetcher
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Worker. A nil logger falls back to slog.Default().
func New(documentStore DocumentStore, blobs BlobFetcher, embedder Embedder, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultSpanSize
	}
	if cfg.embedBackoff <= 0 {
		cfg.embedBackoff = 500 * time.Millisecond
	}
	return &Worker{
		store:    documentStore,
		blobs:    blobs,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process ingests one document. A nil return means the job reached a
// terminal outcome and must be acknowledged: the document is ready, was
// marked failed, no longer exists, or another worker already finished it.
// A non-nil return means a transient failure; the job should be redelivered.
func (w *Worker) Process(ctx context.Context, documentID uuid.UUID) error {
	claimed, err := w.store.ClaimDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Deleted between enqueue and delivery; the job is stale.
			w.logger.Info("skipping job for missing document", "document_id", documentID)
			return nil
		}
		return fmt.Errorf("claiming document: %w", err)
	}
	if !claimed {
		w.logger.Debug("document already in terminal state", "document_id", documentID)
		return nil
	}

	doc, err := w.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	content, err := w.blobs.Fetch(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetching blob: %w", err)
	}

	text := w.extractText(doc.DisplayName, content)

	spans, err := chunker.Split(text, w.cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, chunker.ErrDecode) {
			// Retrying the same bytes can never succeed.
			return w.fail(ctx, documentID, "content is not valid UTF-8")
		}
		return fmt.Errorf("splitting content: %w", err)
	}
	if len(spans) == 0 {
		return w.fail(ctx, documentID, "document has no content")
	}

	vectors, err := w.embedWithRetry(ctx, spans)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("embedding spans: %w", err)
		}
		return w.fail(ctx, documentID, fmt.Sprintf("embedding failed after %d retries: %v", w.cfg.EmbedRetries, err))
	}

	chunks := make([]store.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = store.Chunk{
			DocumentID: documentID,
			Position:   i,
			Content:    span,
			Embedding:  vectors[i],
		}
	}

	if err := w.store.ReplaceChunks(ctx, documentID, chunks); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			// A concurrent worker finished first; its result stands.
			w.logger.Info("yielding to concurrent ingestion", "document_id", documentID)
			return nil
		}
		return fmt.Errorf("persisting chunks: %w", err)
	}

	w.logger.Info("ingested document", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// fail records a permanent failure. The returned error is nil on success so
// the job is acknowledged. A status conflict means another delivery of the
// job already brought the document to a terminal state; that result stands
// and this attempt is acknowledged too. Other store errors propagate as
// transient, and the redelivered job will mark the document failed again.
func (w *Worker) fail(ctx context.Context, documentID uuid.UUID, reason string) error {
	if err := w.store.MarkFailed(ctx, documentID, reason); err != nil {
		switch {
		case errors.Is(err, store.ErrStatusConflict):
			w.logger.Info("yielding failure to concurrent ingestion", "document_id", documentID)
			return nil
		case errors.Is(err, store.ErrNotFound):
			w.logger.Info("skipping failure for missing document", "document_id", documentID)
			return nil
		}
		return fmt.Errorf("marking document failed: %w", err)
	}
	return nil
}

// extractText returns the ingestible text of a blob. HTML documents go
// through readability extraction so markup and boilerplate stay out of the
// index; extraction trouble falls back to the raw bytes, which keeps
// ingestion deterministic for the same blob.
func (w *Worker) extractText(displayName string, content []byte) []byte {
	switch strings.ToLower(filepath.Ext(displayName)) {
	case ".html", ".htm":
	default:
		return content
	}

	article, err := readability.FromReader(bytes.NewReader(content), nil)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		w.logger.Warn("readability extraction failed, ingesting raw content",
			"display_name", displayName, "error", err)
		return content
	}
	return []byte(article.TextContent)
}

func (w *Worker) embedWithRetry(ctx context.Context, spans []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.EmbedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * w.cfg.embedBackoff):
			}
			w.logger.Debug("retrying embedding", "attempt", attempt)
		}

		vectors, err := w.embedder.EmbedBatch(ctx, spans)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}
