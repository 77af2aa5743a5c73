package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CreateOrganization registers an organization. Duplicate names return
// ErrAlreadyExists.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := Organization{ID: uuid.New(), Name: name}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name) VALUES ($1, $2)`,
		org.ID, org.Name,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("organization %q: %w", name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return &org, nil
}

// CreateUser registers a user, optionally attached to an organization.
// Duplicate usernames or emails return ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, username, email string, organizationID *uuid.UUID) (*User, error) {
	user := User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		OrganizationID: organizationID,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, organization_id) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.Email, user.OrganizationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", username, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// UserScope returns the user's organization membership (nil when none) and
// the IDs of the documents the user owns directly, in one round trip. Returns
// ErrNotFound when the user does not exist.
func (s *Store) UserScope(ctx context.Context, userID uuid.UUID) (*uuid.UUID, []uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.organization_id, d.id
		FROM users u
		LEFT JOIN documents d ON d.owner_kind = 'user' AND d.owner_id = u.id
		WHERE u.id = $1`,
		userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user scope: %w", err)
	}
	defer rows.Close()

	var (
		found  bool
		orgID  *uuid.UUID
		docIDs []uuid.UUID
	)
	for rows.Next() {
		var docID *uuid.UUID
		if err := rows.Scan(&orgID, &docID); err != nil {
			return nil, nil, fmt.Errorf("failed to scan user scope: %w", err)
		}
		found = true
		if docID != nil {
			docIDs = append(docIDs, *docID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate user scope: %w", err)
	}
	if !found {
		return nil, nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return orgID, docIDs, nil
}

// OrganizationDocuments returns the IDs of documents owned by the
// organization.
func (s *Store) OrganizationDocuments(ctx context.Context, organizationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM documents WHERE owner_kind = 'organization' AND owner_id = $1`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization documents: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect organization documents: %w", err)
	}
	return ids, nil
}

// ListDocuments returns all documents belonging to an owner, newest first.
func (s *Store) ListDocuments(ctx context.Context, owner Owner) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_kind, owner_id, display_name, status, failure_reason,
		       created_at, updated_at
		FROM documents
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY created_at DESC`,
		string(owner.Kind), owner.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc           Document
			failureReason *string
		)
		if err := rows.Scan(&doc.ID, &doc.Owner.Kind, &doc.Owner.ID,
			&doc.DisplayName, &doc.Status, &failureReason,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if failureReason != nil {
			doc.FailureReason = *failureReason
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
