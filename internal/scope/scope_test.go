package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/corpusd/corpusd/internal/log"
	"github.com/corpusd/corpusd/internal/store"
)

type fakeQuerier struct {
	orgID    *uuid.UUID
	userDocs []uuid.UUID
	orgDocs  []uuid.UUID
	userErr  error
	orgErr   error

	orgCalls int
}

func (f *fakeQuerier) UserScope(_ context.Context, _ uuid.UUID) (*uuid.UUID, []uuid.UUID, error) {
	if f.userErr != nil {
		return nil, nil, f.userErr
	}
	return f.orgID, f.userDocs, nil
}

func (f *fakeQuerier) OrganizationDocuments(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	f.orgCalls++
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	return f.orgDocs, nil
}

func TestResolve_UnionWithOrganization(t *testing.T) {
	orgID := uuid.New()
	shared := uuid.New()
	userOnly := uuid.New()
	orgOnly := uuid.New()

	q := &fakeQuerier{
		orgID:    &orgID,
		userDocs: []uuid.UUID{userOnly, shared},
		orgDocs:  []uuid.UUID{orgOnly, shared},
	}
	r := New(q, log.NewNop())

	scope, err := r.Resolve(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(scope) != 3 {
		t.Fatalf("scope size = %d, want 3 (deduplicated union)", len(scope))
	}
	want := map[uuid.UUID]bool{userOnly: true, shared: true, orgOnly: true}
	for _, id := range scope {
		if !want[id] {
			t.Errorf("unexpected document %s in scope", id)
		}
	}
}

func TestResolve_NoOrganization(t *testing.T) {
	docID := uuid.New()
	q := &fakeQuerier{userDocs: []uuid.UUID{docID}}
	r := New(q, log.NewNop())

	scope, err := r.Resolve(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(scope) != 1 || scope[0] != docID {
		t.Errorf("scope = %v, want [%s]", scope, docID)
	}
	if q.orgCalls != 0 {
		t.Errorf("organization lookup called %d times for user without organization", q.orgCalls)
	}
}

func TestResolve_EmptyScope(t *testing.T) {
	r := New(&fakeQuerier{}, log.NewNop())

	scope, err := r.Resolve(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(scope) != 0 {
		t.Errorf("scope = %v, want empty", scope)
	}
}

func TestResolve_UnknownUser(t *testing.T) {
	q := &fakeQuerier{userErr: store.ErrNotFound}
	r := New(q, log.NewNop())

	if _, err := r.Resolve(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Resolve = %v, want store.ErrNotFound", err)
	}
}

func TestResolve_OrganizationLookupError(t *testing.T) {
	orgID := uuid.New()
	wantErr := errors.New("connection reset")
	q := &fakeQuerier{orgID: &orgID, orgErr: wantErr}
	r := New(q, log.NewNop())

	if _, err := r.Resolve(context.Background(), uuid.New()); !errors.Is(err, wantErr) {
		t.Errorf("Resolve = %v, want wrapped %v", err, wantErr)
	}
}
