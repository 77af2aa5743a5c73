package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ScopedSearch ranks the chunks of the given documents by L2 distance to the
// query vector and returns the closest limit matches. Ordering is total:
// ties on distance break on chunk ID, so repeated queries return identical
// result lists. An empty document scope returns no matches without touching
// the database.
func (s *Store) ScopedSearch(ctx context.Context, query []float32, documentIDs []uuid.UUID, limit int) ([]Match, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, embedding <-> $1 AS distance
		FROM chunks
		WHERE document_id = ANY($2)
		ORDER BY distance, id
		LIMIT $3`,
		pgvector.NewVector(query), documentIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Content, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}
