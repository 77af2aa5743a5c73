// Package search answers scoped retrieval queries: resolve the caller's
// document scope, embed the query text, and rank the in-scope chunks by
// vector distance.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// ScopeResolver yields the document IDs a user may search.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Embedder turns the query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher ranks chunks of the given documents by distance to the query
// vector.
type Searcher interface {
	ScopedSearch(ctx context.Context, query []float32, documentIDs []uuid.UUID, limit int) ([]store.Match, error)
}

// Engine executes retrieval queries.
type Engine struct {
	scopes   ScopeResolver
	embedder Embedder
	searcher Searcher
	logger   *slog.Logger
}

// New creates an Engine. A nil logger falls back to slog.Default().
func New(scopes ScopeResolver, embedder Embedder, searcher Searcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{scopes: scopes, embedder: embedder, searcher: searcher, logger: logger}
}

// Query searches the user's scope for the k chunks closest to the query
// text. k defaults when non-positive and is clamped to the maximum; results
// come back in ascending distance order with ties broken deterministically.
// A user with an empty scope gets an empty result, not an error. Propagates
// store.ErrNotFound for unknown users.
func (e *Engine) Query(ctx context.Context, userID uuid.UUID, query string, k int) ([]store.Match, error) {
	if k <= 0 {
		k = config.DefaultSearchLimit
	}
	if k > config.MaxSearchLimit {
		k = config.MaxSearchLimit
	}

	started := time.Now()

	documentIDs, err := e.scopes.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving scope: %w", err)
	}
	if len(documentIDs) == 0 {
		e.logger.Debug("search scope is empty", "user_id", userID)
		return []store.Match{}, nil
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := e.searcher.ScopedSearch(ctx, vector, documentIDs, k)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	e.logger.Debug("search completed",
		"user_id", userID,
		"scope_documents", len(documentIDs),
		"matches", len(matches),
		"k", k,
		"elapsed", time.Since(started))
	return matches, nil
}
