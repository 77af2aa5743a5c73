// Package corpus is the application facade: it coordinates the document
// store, the blob store, the job queue, and the search engine behind the
// operations the CLI exposes.
package corpus

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/store"
)

// DocumentStore is the subset of store operations the service needs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, owner store.Owner, displayName string) (*store.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	ListDocuments(ctx context.Context, owner store.Owner) ([]store.Document, error)
}

// BlobStore writes and removes uploaded content.
type BlobStore interface {
	Put(ctx context.Context, id uuid.UUID, content io.Reader) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Enqueuer schedules ingestion jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID uuid.UUID) error
}

// SearchEngine answers scoped retrieval queries.
type SearchEngine interface {
	Query(ctx context.Context, userID uuid.UUID, query string, k int) ([]store.Match, error)
}

// Service wires the pieces together.
type Service struct {
	store  DocumentStore
	blobs  BlobStore
	queue  Enqueuer
	engine SearchEngine
	logger *slog.Logger
}

// New creates a Service. A nil logger falls back to slog.Default().
func New(documentStore DocumentStore, blobs BlobStore, queue Enqueuer, engine SearchEngine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  documentStore,
		blobs:  blobs,
		queue:  queue,
		engine: engine,
		logger: logger,
	}
}

// Upload registers a document, stores its content, and schedules ingestion.
// The returned document is in pending state; ingestion proceeds
// asynchronously and Status reports progress. Returns store.ErrAlreadyExists
// when the owner already has a document with the display name.
//
// If the blob write or the enqueue fails, the registration is rolled back so
// a retried upload does not trip the duplicate name check.
func (s *Service) Upload(ctx context.Context, owner store.Owner, displayName string, content io.Reader) (*store.Document, error) {
	doc, err := s.store.CreateDocument(ctx, owner, displayName)
	if err != nil {
		return nil, fmt.Errorf("registering document: %w", err)
	}

	if err := s.blobs.Put(ctx, doc.ID, content); err != nil {
		s.rollbackUpload(ctx, doc.ID)
		return nil, fmt.Errorf("storing content: %w", err)
	}

	if err := s.queue.Enqueue(ctx, doc.ID); err != nil {
		s.rollbackUpload(ctx, doc.ID)
		return nil, fmt.Errorf("scheduling ingestion: %w", err)
	}

	s.logger.Info("uploaded document",
		"id", doc.ID, "owner_kind", owner.Kind, "display_name", displayName)
	return doc, nil
}

func (s *Service) rollbackUpload(ctx context.Context, id uuid.UUID) {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		s.logger.Error("failed to roll back document registration", "id", id, "error", err)
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Error("failed to roll back blob", "id", id, "error", err)
	}
}

// Ingest schedules (or re-schedules) ingestion for an existing document.
// Useful for re-driving a document whose job was exhausted. Enqueuing a
// document that is already ready is harmless; the worker claim finds it in a
// terminal state and acknowledges.
func (s *Service) Ingest(ctx context.Context, id uuid.UUID) error {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return fmt.Errorf("scheduling ingestion: %w", err)
	}
	return nil
}

// Status returns the document and its ingestion state.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return doc, nil
}

// List returns an owner's documents, newest first.
func (s *Service) List(ctx context.Context, owner store.Owner) ([]store.Document, error) {
	docs, err := s.store.ListDocuments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document, its chunks, and its blob. An ingestion job
// still in flight for the document will find it gone and acknowledge.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		// The record is gone; a leftover blob is only wasted disk.
		s.logger.Warn("failed to delete blob", "id", id, "error", err)
	}
	return nil
}

// Search runs a scoped retrieval query for the user.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, query string, k int) ([]store.Match, error) {
	matches, err := s.engine.Query(ctx, userID, query, k)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	return matches, nil
}
