package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/corpusd/corpusd/internal/log"
	"github.com/corpusd/corpusd/internal/store"
)

type fakeStore struct {
	doc          *store.Document
	claimErr     error
	claimed      bool
	replaceErr   error
	markErr      error
	claimCalls   int
	failedReason string
	chunks       []store.Chunk
	replaced     bool
}

func (f *fakeStore) GetDocument(_ context.Context, _ uuid.UUID) (*store.Document, error) {
	if f.doc == nil {
		return nil, store.ErrNotFound
	}
	return f.doc, nil
}

func (f *fakeStore) ClaimDocument(_ context.Context, _ uuid.UUID) (bool, error) {
	f.claimCalls++
	if f.claimErr != nil {
		return false, f.claimErr
	}
	return f.claimed, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, _ uuid.UUID, reason string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.failedReason = reason
	return nil
}

func (f *fakeStore) ReplaceChunks(_ context.Context, _ uuid.UUID, chunks []store.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.chunks = chunks
	f.replaced = true
	return nil
}

type fakeBlobs struct {
	content []byte
	err     error
	calls   int
}

func (f *fakeBlobs) Fetch(_ context.Context, _ uuid.UUID) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type fakeEmbedder struct {
	errs  []error // consumed per call; nil-padded when exhausted
	calls int
	dim   int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, dim)
		vectors[i][0] = float32(i)
	}
	return vectors, nil
}

func newWorker(s *fakeStore, b *fakeBlobs, e *fakeEmbedder, cfg Config) *Worker {
	cfg.embedBackoff = time.Millisecond
	return New(s, b, e, cfg, log.NewNop())
}

func doc(name string) *store.Document {
	return &store.Document{
		ID:          uuid.New(),
		Owner:       store.UserOwner(uuid.New()),
		DisplayName: name,
		Status:      store.StatusProcessing,
	}
}

func TestProcess_Success(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true}
	b := &fakeBlobs{content: []byte("hello ingestion world")}
	e := &fakeEmbedder{}
	w := newWorker(s, b, e, Config{ChunkSize: 5})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !s.replaced {
		t.Fatal("chunks were not persisted")
	}
	var rebuilt strings.Builder
	for i, c := range s.chunks {
		if c.Position != i {
			t.Errorf("chunk %d position = %d", i, c.Position)
		}
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %d has no embedding", i)
		}
		rebuilt.WriteString(c.Content)
	}
	if rebuilt.String() != "hello ingestion world" {
		t.Errorf("concatenated chunks = %q, want original content", rebuilt.String())
	}
}

func TestProcess_MissingDocumentIsTerminal(t *testing.T) {
	s := &fakeStore{claimErr: store.ErrNotFound}
	b := &fakeBlobs{}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), uuid.New()); err != nil {
		t.Errorf("Process = %v, want nil for deleted document", err)
	}
	if b.calls != 0 {
		t.Error("blob fetched for missing document")
	}
}

func TestProcess_TerminalStateSkips(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: false}
	b := &fakeBlobs{}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Errorf("Process = %v, want nil for already-finished document", err)
	}
	if b.calls != 0 {
		t.Error("blob fetched for already-finished document")
	}
}

func TestProcess_ClaimErrorIsTransient(t *testing.T) {
	s := &fakeStore{claimErr: errors.New("connection refused")}
	w := newWorker(s, &fakeBlobs{}, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), uuid.New()); err == nil {
		t.Error("Process = nil, want transient error on claim failure")
	}
}

func TestProcess_BlobErrorIsTransient(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true}
	b := &fakeBlobs{err: errors.New("blob not found")}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err == nil {
		t.Error("Process = nil, want transient error on blob fetch failure")
	}
	if s.failedReason != "" {
		t.Errorf("document marked failed (%q) for a transient condition", s.failedReason)
	}
}

func TestProcess_InvalidUTF8IsPermanent(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true}
	b := &fakeBlobs{content: []byte{0xff, 0xfe, 0xfd}}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process = %v, want nil after recording permanent failure", err)
	}
	if s.failedReason == "" {
		t.Error("document was not marked failed")
	}
	if s.replaced {
		t.Error("chunks persisted for undecodable content")
	}
}

func TestProcess_EmptyContentIsPermanent(t *testing.T) {
	s := &fakeStore{doc: doc("empty.txt"), claimed: true}
	b := &fakeBlobs{content: nil}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process = %v, want nil", err)
	}
	if s.failedReason == "" {
		t.Error("empty document was not marked failed")
	}
}

func TestProcess_EmbeddingRetriesThenFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := &fakeStore{doc: doc("notes.txt"), claimed: true}
	b := &fakeBlobs{content: []byte("some text")}
	unavailable := errors.New("model unavailable")
	e := &fakeEmbedder{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	w := newWorker(s, b, e, Config{EmbedRetries: 3})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process = %v, want nil after recording permanent failure", err)
	}
	if e.calls != 4 {
		t.Errorf("embedder called %d times, want 4 (initial + 3 retries)", e.calls)
	}
	if !strings.Contains(s.failedReason, "embedding failed") {
		t.Errorf("failure reason = %q", s.failedReason)
	}
}

func TestProcess_EmbeddingRecoversWithinBudget(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true}
	b := &fakeBlobs{content: []byte("some text")}
	e := &fakeEmbedder{errs: []error{errors.New("blip")}}
	w := newWorker(s, b, e, Config{EmbedRetries: 3})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process = %v, want nil", err)
	}
	if !s.replaced {
		t.Error("chunks were not persisted after retry recovery")
	}
	if s.failedReason != "" {
		t.Errorf("document marked failed: %q", s.failedReason)
	}
}

func TestProcess_FailureAfterConcurrentFinishYields(t *testing.T) {
	// This delivery hits a permanent failure, but another delivery of the
	// same job already brought the document to a terminal state. The
	// failure report loses the compare-and-set and the job is acknowledged
	// without disturbing the finished document.
	s := &fakeStore{doc: doc("notes.txt"), claimed: true, markErr: store.ErrStatusConflict}
	b := &fakeBlobs{content: []byte{0xff, 0xfe, 0xfd}}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Errorf("Process = %v, want nil when the failure report loses the race", err)
	}
}

func TestProcess_FailureForDeletedDocumentYields(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true, markErr: store.ErrNotFound}
	b := &fakeBlobs{content: []byte{}}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Errorf("Process = %v, want nil when the document vanished mid-job", err)
	}
}

func TestProcess_MarkFailedErrorIsTransient(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true, markErr: errors.New("connection refused")}
	b := &fakeBlobs{content: []byte{0xff, 0xfe, 0xfd}}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err == nil {
		t.Error("Process = nil, want transient error when the failure cannot be recorded")
	}
}

func TestProcess_StatusConflictYields(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true, replaceErr: store.ErrStatusConflict}
	b := &fakeBlobs{content: []byte("some text")}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Errorf("Process = %v, want nil when a concurrent worker won", err)
	}
}

func TestProcess_ReplaceErrorIsTransient(t *testing.T) {
	s := &fakeStore{doc: doc("notes.txt"), claimed: true, replaceErr: errors.New("deadlock detected")}
	b := &fakeBlobs{content: []byte("some text")}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err == nil {
		t.Error("Process = nil, want transient error on persistence failure")
	}
}

func TestProcess_HTMLContentIsExtracted(t *testing.T) {
	paragraph := strings.Repeat("Document ingestion pipelines split text into spans and embed each one. ", 12)
	page := fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Pipelines</title></head>
<body><nav><a href="/">home</a></nav>
<article><h1>Pipelines</h1><p>%s</p></article>
</body></html>`, paragraph)

	s := &fakeStore{doc: doc("pipelines.html"), claimed: true}
	b := &fakeBlobs{content: []byte(page)}
	w := newWorker(s, b, &fakeEmbedder{}, Config{})

	if err := w.Process(context.Background(), s.doc.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !s.replaced {
		t.Fatal("chunks were not persisted")
	}
	for _, c := range s.chunks {
		if strings.Contains(c.Content, "<p>") || strings.Contains(c.Content, "<article>") {
			t.Errorf("chunk contains markup: %q", c.Content)
		}
	}
}
