package store

import (
	"time"

	"github.com/google/uuid"
)

// OwnerKind discriminates the two owner variants of a document.
type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// Owner is a tagged union: a document belongs to exactly one user or exactly
// one organization. Modeling it as kind+id (instead of two nullable foreign
// keys) makes the mutual exclusion structural.
type Owner struct {
	Kind OwnerKind
	ID   uuid.UUID
}

// UserOwner returns an Owner tagged as a user.
func UserOwner(id uuid.UUID) Owner {
	return Owner{Kind: OwnerUser, ID: id}
}

// OrganizationOwner returns an Owner tagged as an organization.
func OrganizationOwner(id uuid.UUID) Owner {
	return Owner{Kind: OwnerOrganization, ID: id}
}

// Status is the ingestion state of a document. Transitions are driven solely
// by the ingestion worker: pending → processing → ready | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Document is an uploaded document and its ingestion state.
type Document struct {
	ID            uuid.UUID
	Owner         Owner
	DisplayName   string
	Status        Status
	FailureReason string // set only when Status is StatusFailed
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is a bounded span of a document's text paired with its embedding
// vector. Chunks are written exactly once per successful ingestion run and
// are immutable thereafter.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Position   int
	Content    string
	Embedding  []float32
}

// Match is a single retrieval result. Score is the L2 distance between the
// query vector and the chunk vector; smaller means more similar.
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Content    string
	Score      float64
}

// User is a minimal identity record, enough for ownership resolution.
type User struct {
	ID             uuid.UUID
	Username       string
	Email          string
	OrganizationID *uuid.UUID // nil when the user has no organization
}

// Organization is a minimal organization record.
type Organization struct {
	ID   uuid.UUID
	Name string
}
