package store

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation, e.g. registering
	// a document with a display name its owner already uses.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStatusConflict indicates an optimistic status update lost a race:
	// the document's status changed between read and write. The caller
	// should treat the other writer's outcome as authoritative.
	ErrStatusConflict = errors.New("document status conflict")
)
