// Package store persists documents, chunks, and their embedding vectors in
// PostgreSQL with the pgvector extension.
//
// Status transitions use compare-and-swap updates so that concurrent workers
// redelivered the same ingestion job cannot interleave destructively: the
// losing writer observes ErrStatusConflict (or zero rows claimed) and defers
// to the winner.
//
// Store is safe for concurrent use by multiple goroutines.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Store provides document and chunk persistence backed by a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateDocument registers a new document in pending state. The display name
// must be unique per owner; a duplicate returns ErrAlreadyExists.
func (s *Store) CreateDocument(ctx context.Context, owner Owner, displayName string) (*Document, error) {
	doc := Document{
		ID:          uuid.New(),
		Owner:       owner,
		DisplayName: displayName,
		Status:      StatusPending,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, owner_kind, owner_id, display_name, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		doc.ID, string(owner.Kind), owner.ID, displayName, string(StatusPending),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("document %q for %s %s: %w",
				displayName, owner.Kind, owner.ID, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Debug("created document",
		"id", doc.ID, "owner_kind", owner.Kind, "display_name", displayName)
	return &doc, nil
}

// GetDocument retrieves a document by ID. Returns ErrNotFound when no such
// document exists.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var (
		doc           Document
		failureReason *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_kind, owner_id, display_name, status, failure_reason,
		       created_at, updated_at
		FROM documents
		WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Owner.Kind, &doc.Owner.ID, &doc.DisplayName,
		&doc.Status, &failureReason, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	if failureReason != nil {
		doc.FailureReason = *failureReason
	}
	return &doc, nil
}

// ClaimDocument attempts to move a document into processing state. It
// succeeds for documents in pending state, and also for documents already in
// processing state so that a redelivered job can resume after a worker crash.
// Returns false when the document is already ready or failed (the job is
// stale) and ErrNotFound when the document does not exist.
func (s *Store) ClaimDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, string(StatusProcessing), string(StatusPending), string(StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim document %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish "terminal state" from "no such document".
	var status Status
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM documents WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return false, fmt.Errorf("failed to inspect document %s: %w", id, err)
	}
	s.logger.Debug("claim skipped, document in terminal state", "id", id, "status", status)
	return false, nil
}

// MarkFailed records a permanent ingestion failure. The failure reason is
// stored for operator inspection via document status queries. Only a document
// in processing state can be failed; a redelivered job must not clobber the
// result of a worker that already finished. Returns ErrStatusConflict when
// the document is in any other state and ErrNotFound when it does not exist.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, string(StatusFailed), reason, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark document %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var status Status
		err = s.pool.QueryRow(ctx,
			`SELECT status FROM documents WHERE id = $1`, id,
		).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("document %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to inspect document %s: %w", id, err)
		}
		return fmt.Errorf("document %s in %s state: %w", id, status, ErrStatusConflict)
	}
	s.logger.Warn("document ingestion failed", "id", id, "reason", reason)
	return nil
}

// ReplaceChunks atomically replaces a document's chunks and marks it ready.
// All writes happen in one transaction: existing chunks are deleted, the new
// chunks inserted, and the status flipped from processing to ready. If the
// document is no longer in processing state the transaction rolls back and
// ErrStatusConflict is returned; a concurrent worker already finished or the
// document was failed in the meantime.
func (s *Store) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("failed to rollback chunk transaction", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	for _, chunk := range chunks {
		id := chunk.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, position, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			id, documentID, chunk.Position, chunk.Content,
			pgvector.NewVector(chunk.Embedding),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.Position, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2, failure_reason = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`,
		documentID, string(StatusReady), string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to finish document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not in processing state: %w",
			documentID, ErrStatusConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunk transaction: %w", err)
	}

	s.logger.Info("document ready", "id", documentID, "chunks", len(chunks))
	return nil
}

// DeleteDocument removes a document and, via ON DELETE CASCADE, its chunks.
// Returns ErrNotFound when the document does not exist.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// CountChunks returns the number of stored chunks for a document.
func (s *Store) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE document_id = $1`, documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for %s: %w", documentID, err)
	}
	return count, nil
}
