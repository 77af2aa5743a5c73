package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// openStore opens a database-only store for commands that never touch the
// embedder or the queue. Cheaper than a full app.Setup.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}
	return store.New(pool, logger), pool.Close, nil
}
