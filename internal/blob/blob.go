// Package blob stores uploaded document content on the local filesystem,
// keyed by document ID. The ingestion pipeline is asynchronous, so the blob
// written at upload time must survive until a worker fetches it, possibly
// after process restarts.
//
// Writes are guarded by per-blob advisory file locks so that concurrent
// uploads or a worker reading during a re-upload never observe a torn file,
// and land via rename so readers see either the old content or the new,
// never a partial write.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrNotFound indicates no blob is stored under the given document ID.
// Callers should treat it as transient when the upload is known to have
// happened on another host; the blob may not be visible here yet.
var ErrNotFound = errors.New("blob not found")

// lockRetryDelay is how often a blocked lock acquisition re-polls.
const lockRetryDelay = 50 * time.Millisecond

// FileStore is a filesystem-backed blob store rooted at a single directory.
// All paths are resolved inside the root; traversal out of it is impossible.
//
// FileStore is safe for concurrent use by multiple goroutines.
type FileStore struct {
	root   *os.Root
	dir    string
	logger *slog.Logger
}

// NewFileStore opens (creating if needed) the blob directory and returns a
// store over it. A nil logger falls back to slog.Default().
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening blob directory: %w", err)
	}
	return &FileStore{root: root, dir: dir, logger: logger}, nil
}

// Close releases the root directory handle.
func (s *FileStore) Close() error {
	if err := s.root.Close(); err != nil {
		return fmt.Errorf("closing blob directory: %w", err)
	}
	return nil
}

func blobName(id uuid.UUID) string {
	return id.String() + ".blob"
}

// Put stores the content for a document, replacing any previous blob. The
// content is written to a temporary file and renamed into place under an
// advisory lock.
func (s *FileStore) Put(ctx context.Context, id uuid.UUID, content io.Reader) (err error) {
	lock := flock.New(filepath.Join(s.dir, id.String()+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking blob %s: %w", id, err)
	}
	if !locked {
		return fmt.Errorf("locking blob %s: lock not acquired", id)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("unlocking blob %s: %w", id, unlockErr)
		}
	}()

	tmpName := blobName(id) + ".tmp"
	f, err := s.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("creating blob temp file: %w", err)
	}

	written, err := io.Copy(f, content)
	if err != nil {
		_ = f.Close()
		_ = s.root.Remove(tmpName)
		return fmt.Errorf("writing blob %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		_ = s.root.Remove(tmpName)
		return fmt.Errorf("closing blob temp file: %w", err)
	}

	if err := s.root.Rename(tmpName, blobName(id)); err != nil {
		_ = s.root.Remove(tmpName)
		return fmt.Errorf("publishing blob %s: %w", id, err)
	}

	s.logger.Debug("stored blob", "id", id, "bytes", written)
	return nil
}

// Fetch returns the stored content for a document. Returns ErrNotFound when
// no blob exists under the ID.
func (s *FileStore) Fetch(_ context.Context, id uuid.UUID) ([]byte, error) {
	f, err := s.root.Open(blobName(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("opening blob %s: %w", id, err)
	}
	defer func() {
		_ = f.Close()
	}()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", id, err)
	}
	return content, nil
}

// Delete removes a document's blob and its lock file. Deleting a missing
// blob is not an error; the caller only cares that it is gone.
func (s *FileStore) Delete(_ context.Context, id uuid.UUID) error {
	if err := s.root.Remove(blobName(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", id, err)
	}
	if err := s.root.Remove(id.String() + ".lock"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob lock %s: %w", id, err)
	}
	return nil
}
