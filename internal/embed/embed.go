// Package embed wraps a Genkit embedder behind a fixed-dimension provider.
//
// The provider is created once at startup and is safe for concurrent use by
// ingestion workers and retrieval requests. Every vector it returns is checked
// against the configured dimension; the stored schema fixes the vector width,
// so a disagreement is a configuration error, not a per-request condition.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// Sentinel errors for embedding operations, checked with errors.Is().
var (
	// ErrEmbedding indicates the model call failed. The caller decides
	// whether this is fatal for the enclosing job; the call itself is
	// idempotent and safe to retry.
	ErrEmbedding = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates the provider produced vectors of a
	// different width than the stored schema expects. This should abort
	// startup via VerifyDimension, never be handled per request.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config holds provider settings.
type Config struct {
	// Dimension is the required output vector width. Must match the
	// vector column width in the database schema.
	Dimension int

	// RequestsPerSecond limits model calls. Zero means unlimited.
	RequestsPerSecond float64
}

// Provider converts text into fixed-dimension dense vectors.
//
// Provider is safe for concurrent use by multiple goroutines.
type Provider struct {
	embedder ai.Embedder
	dim      int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Provider over a Genkit embedder.
//
// The embedder is expected to be registered once per process; Provider never
// reloads it. A model change invalidates stored vectors and requires explicit
// re-ingestion.
func New(embedder ai.Embedder, cfg Config, logger *slog.Logger) (*Provider, error) {
	if embedder == nil {
		return nil, errors.New("embedder must not be nil")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Provider{
		embedder: embedder,
		dim:      cfg.Dimension,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Dimension returns the fixed output vector width.
func (p *Provider) Dimension() int {
	return p.dim
}

// Embed converts a single text into a vector of Dimension() values.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into vectors, preserving input order one-to-one.
// A single model call covers the whole batch to amortize call overhead.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != p.dim {
			return nil, fmt.Errorf("%w: provider returned %d values, schema expects %d",
				ErrDimensionMismatch, len(emb.Embedding), p.dim)
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}

// VerifyDimension probes the provider with a short text and confirms the
// output width matches the configured dimension. Call this during startup:
// a mismatch means the configured model disagrees with the stored schema and
// the process must not serve traffic.
func (p *Provider) VerifyDimension(ctx context.Context) error {
	vec, err := p.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probing embedder dimension: %w", err)
	}

	p.logger.Debug("verified embedder dimension", "dimension", len(vec))
	return nil
}
