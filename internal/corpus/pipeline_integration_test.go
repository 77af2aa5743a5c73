package corpus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/blob"
	"github.com/corpusd/corpusd/internal/embed"
	"github.com/corpusd/corpusd/internal/ingest"
	"github.com/corpusd/corpusd/internal/log"
	"github.com/corpusd/corpusd/internal/queue"
	"github.com/corpusd/corpusd/internal/scope"
	"github.com/corpusd/corpusd/internal/search"
	"github.com/corpusd/corpusd/internal/store"
	"github.com/corpusd/corpusd/internal/testutil"
)

// pipeline assembles the full stack against real PostgreSQL and NATS, with a
// deterministic embedder standing in for the model.
type pipeline struct {
	store   *store.Store
	blobs   *blob.FileStore
	service *Service
}

func setupPipeline(t *testing.T, chunkSize int) *pipeline {
	t.Helper()
	logger := log.NewNop()
	ctx := context.Background()

	pool := testutil.SetupPostgres(t)
	st := store.New(pool, logger)

	blobs, err := blob.NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = blobs.Close()
	})

	q, err := queue.Connect(testutil.SetupNATS(t),
		queue.Config{MaxDeliver: 5, AckWait: 10 * time.Second}, logger)
	if err != nil {
		t.Fatalf("queue.Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})

	provider, err := embed.New(testutil.NewBagEmbedder(384), embed.Config{Dimension: 384}, logger)
	if err != nil {
		t.Fatalf("embed.New failed: %v", err)
	}

	worker := ingest.New(st, blobs, provider, ingest.Config{ChunkSize: chunkSize}, logger)
	stop, err := q.Consume(ctx, func(ctx context.Context, job queue.Job) error {
		return worker.Process(ctx, job.DocumentID)
	})
	if err != nil {
		t.Fatalf("q.Consume failed: %v", err)
	}
	t.Cleanup(func() {
		_ = stop()
	})

	engine := search.New(scope.New(st, logger), provider, st, logger)
	return &pipeline{
		store:   st,
		blobs:   blobs,
		service: New(st, blobs, q, engine, logger),
	}
}

// waitSettled polls until the document leaves pending and processing.
func waitSettled(t *testing.T, p *pipeline, id uuid.UUID) *store.Document {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := p.service.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if doc.Status == store.StatusReady || doc.Status == store.StatusFailed {
			return doc
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("document %s did not settle in time", id)
	return nil
}

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	p := setupPipeline(t, 1024)
	ctx := context.Background()

	org, err := p.store.CreateOrganization(ctx, "acme")
	if err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	alice, err := p.store.CreateUser(ctx, "alice", "alice@example.com", &org.ID)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	bob, err := p.store.CreateUser(ctx, "bob", "bob@example.com", nil)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	upload := func(owner store.Owner, name, content string) uuid.UUID {
		t.Helper()
		doc, err := p.service.Upload(ctx, owner, name, strings.NewReader(content))
		if err != nil {
			t.Fatalf("Upload %s failed: %v", name, err)
		}
		return doc.ID
	}

	catsID := upload(store.UserOwner(alice.ID), "cats.txt", "cats purr softly in the afternoon sun")
	dogsID := upload(store.OrganizationOwner(org.ID), "dogs.txt", "dogs bark loudly at the postman")
	fishID := upload(store.UserOwner(bob.ID), "fish.txt", "fish swim silently through the reef")

	for _, id := range []uuid.UUID{catsID, dogsID, fishID} {
		if doc := waitSettled(t, p, id); doc.Status != store.StatusReady {
			t.Fatalf("document %s status = %q (%s)", id, doc.Status, doc.FailureReason)
		}
	}

	t.Run("ranking prefers matching document", func(t *testing.T) {
		matches, err := p.service.Search(ctx, alice.ID, "cats purr", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(matches) == 0 {
			t.Fatal("no matches")
		}
		if matches[0].DocumentID != catsID {
			t.Errorf("top match from document %s, want %s", matches[0].DocumentID, catsID)
		}
		for i := 1; i < len(matches); i++ {
			if matches[i].Score < matches[i-1].Score {
				t.Errorf("scores not ascending at %d", i)
			}
		}
	})

	t.Run("scope unions user and organization documents", func(t *testing.T) {
		matches, err := p.service.Search(ctx, alice.ID, "dogs bark", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(matches) == 0 || matches[0].DocumentID != dogsID {
			t.Errorf("organization document not reachable from member's search")
		}
		for _, m := range matches {
			if m.DocumentID == fishID {
				t.Error("another user's document leaked into alice's results")
			}
		}
	})

	t.Run("user outside organization sees only own documents", func(t *testing.T) {
		matches, err := p.service.Search(ctx, bob.ID, "cats purr", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		for _, m := range matches {
			if m.DocumentID != fishID {
				t.Errorf("bob's results include foreign document %s", m.DocumentID)
			}
		}
	})

	t.Run("user with no documents searches an empty scope", func(t *testing.T) {
		dave, err := p.store.CreateUser(ctx, "dave", "dave@example.com", nil)
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}

		matches, err := p.service.Search(ctx, dave.ID, "anything at all", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(matches) != 0 {
			t.Errorf("got %d matches, want none", len(matches))
		}
	})

	t.Run("identical token content scores zero distance", func(t *testing.T) {
		exactID := upload(store.UserOwner(bob.ID), "exact.txt", "alpha beta gamma")
		if doc := waitSettled(t, p, exactID); doc.Status != store.StatusReady {
			t.Fatalf("document status = %q", doc.Status)
		}

		matches, err := p.service.Search(ctx, bob.ID, "alpha beta gamma", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(matches) == 0 {
			t.Fatal("no matches")
		}
		if matches[0].DocumentID != exactID || matches[0].Score > 1e-5 {
			t.Errorf("top match = document %s score %f, want %s at distance 0",
				matches[0].DocumentID, matches[0].Score, exactID)
		}
	})

	t.Run("undecodable content is marked failed", func(t *testing.T) {
		doc, err := p.service.Upload(ctx, store.UserOwner(bob.ID), "garbage.bin",
			bytes.NewReader([]byte{0xff, 0xfe, 0x00, 0xba, 0xad}))
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}

		settled := waitSettled(t, p, doc.ID)
		if settled.Status != store.StatusFailed {
			t.Fatalf("status = %q, want %q", settled.Status, store.StatusFailed)
		}
		if settled.FailureReason == "" {
			t.Error("failed document has no failure reason")
		}
	})

	t.Run("duplicate display name is rejected", func(t *testing.T) {
		_, err := p.service.Upload(ctx, store.UserOwner(alice.ID), "cats.txt", strings.NewReader("again"))
		if !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("Upload = %v, want store.ErrAlreadyExists", err)
		}
	})
}

func TestPipelineSmallChunks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	p := setupPipeline(t, 5)
	ctx := context.Background()

	carol, err := p.store.CreateUser(ctx, "carol", "carol@example.com", nil)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	doc, err := p.service.Upload(ctx, store.UserOwner(carol.ID), "letters.txt",
		strings.NewReader("AAAA BBBB CCCC"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	settled := waitSettled(t, p, doc.ID)
	if settled.Status != store.StatusReady {
		t.Fatalf("status = %q (%s)", settled.Status, settled.FailureReason)
	}

	count, err := p.store.CountChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("chunk count = %d, want 3 for 14 runes at size 5", count)
	}

	t.Run("query matches the chunk containing it at distance zero", func(t *testing.T) {
		matches, err := p.service.Search(ctx, carol.ID, "AAAA", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(matches) != 3 {
			t.Fatalf("got %d matches, want 3", len(matches))
		}
		if matches[0].Content != "AAAA " || matches[0].Score > 1e-5 {
			t.Errorf("top match = %q at %f, want %q at distance 0",
				matches[0].Content, matches[0].Score, "AAAA ")
		}
	})

	t.Run("ingest drives a document whose job was lost", func(t *testing.T) {
		// Register the document and its blob without enqueuing, as if the
		// upload's job had been lost after its delivery attempts ran out.
		stuck, err := p.store.CreateDocument(ctx, store.UserOwner(carol.ID), "stuck.txt")
		if err != nil {
			t.Fatalf("CreateDocument failed: %v", err)
		}
		if err := p.blobs.Put(ctx, stuck.ID, strings.NewReader("DDDD EEEE")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		if err := p.service.Ingest(ctx, stuck.ID); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}

		settled := waitSettled(t, p, stuck.ID)
		if settled.Status != store.StatusReady {
			t.Fatalf("status = %q (%s)", settled.Status, settled.FailureReason)
		}
		count, err := p.store.CountChunks(ctx, stuck.ID)
		if err != nil {
			t.Fatalf("CountChunks failed: %v", err)
		}
		if count != 2 {
			t.Errorf("chunk count = %d, want 2 for 9 runes at size 5", count)
		}
	})

	t.Run("ingest of an unknown document is rejected", func(t *testing.T) {
		if err := p.service.Ingest(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Ingest = %v, want store.ErrNotFound", err)
		}
	})
}
