// Package app provides application initialization and dependency wiring.
//
// App is the container that builds every component in dependency order:
// tracing, database pool, Genkit embedder, blob store, job queue, ingestion
// worker, and the corpus service. Call Setup to construct and Close to
// release.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpusd/corpusd/internal/blob"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/corpus"
	"github.com/corpusd/corpusd/internal/embed"
	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/queue"
	"github.com/corpusd/corpusd/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder *embed.Provider
	DBPool   *pgxpool.Pool
	Store    *store.Store
	Blobs    *blob.FileStore
	Queue    *queue.Queue
	Worker   *ingest.Worker
	Service  *corpus.Service

	logger      *slog.Logger
	otelCleanup func()
}

// Close gracefully shuts down all resources in reverse dependency order.
func (a *App) Close() error {
	a.logger.Info("shutting down")

	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.logger.Warn("closing queue", "error", err)
		}
	}
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			a.logger.Warn("closing blob store", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// RunWorker consumes ingestion jobs until the context is canceled, then
// drains the subscription. Jobs in flight at shutdown see the canceled
// context, nak, and are redelivered to the next worker.
func (a *App) RunWorker(ctx context.Context) error {
	stop, err := a.Queue.Consume(ctx, func(ctx context.Context, job queue.Job) error {
		return a.Worker.Process(ctx, job.DocumentID)
	})
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("stopping worker")
	if err := stop(); err != nil {
		return fmt.Errorf("stopping consumer: %w", err)
	}
	return nil
}
