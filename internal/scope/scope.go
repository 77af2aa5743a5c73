// Package scope resolves the set of documents a user may search: the
// documents the user owns plus the documents owned by the user's
// organization, if any.
package scope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Querier provides the two ownership lookups the resolver needs.
// Following Go best practices: interfaces are defined by the consumer.
type Querier interface {
	// UserScope returns the user's organization (nil when none) and the
	// IDs of documents the user owns directly.
	UserScope(ctx context.Context, userID uuid.UUID) (*uuid.UUID, []uuid.UUID, error)

	// OrganizationDocuments returns the IDs of documents owned by the
	// organization.
	OrganizationDocuments(ctx context.Context, organizationID uuid.UUID) ([]uuid.UUID, error)
}

// Resolver computes search scopes. It performs at most two queries per
// resolution: one for the user and their documents, one for organization
// documents when the user belongs to an organization.
type Resolver struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a Resolver. A nil logger falls back to slog.Default().
func New(querier Querier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{querier: querier, logger: logger}
}

// Resolve returns the deduplicated union of the user's own documents and
// the user's organization's documents. The slice may be empty but resolution
// still succeeds; searching an empty scope simply yields no matches.
// Propagates store.ErrNotFound when the user does not exist.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	orgID, docIDs, err := r.querier.UserScope(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving scope for user %s: %w", userID, err)
	}

	seen := make(map[uuid.UUID]struct{}, len(docIDs))
	scope := make([]uuid.UUID, 0, len(docIDs))
	for _, id := range docIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		scope = append(scope, id)
	}

	if orgID != nil {
		orgDocs, err := r.querier.OrganizationDocuments(ctx, *orgID)
		if err != nil {
			return nil, fmt.Errorf("resolving organization documents for %s: %w", *orgID, err)
		}
		for _, id := range orgDocs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			scope = append(scope, id)
		}
	}

	r.logger.Debug("resolved search scope",
		"user_id", userID, "documents", len(scope), "has_organization", orgID != nil)
	return scope, nil
}
