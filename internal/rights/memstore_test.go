package rights

import (
	"context"
	"testing"

	"github.com/tixgate/actionset/model"
)

func TestMemoryGrantStore_PutVersioning(t *testing.T) {
	s := NewMemoryGrantStore()
	ctx := context.Background()

	g := model.Grant{
		GranteeID:   "alice",
		EntityType:  "actionset",
		EntityValue: "as-1",
		Rights:      map[string]bool{"owner": true},
	}
	if err := s.Put(ctx, g); err != nil {
		t.Fatalf("insert error: %v", err)
	}

	// Insert with version 0 again conflicts.
	if err := s.Put(ctx, g); model.CodeOf(err) != model.ErrConflict {
		t.Fatalf("duplicate insert = %v, want CONFLICT", err)
	}

	stored, err := s.Get(ctx, "alice", "actionset", "as-1")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("Version = %d, want 1", stored.Version)
	}

	// Stale version update conflicts.
	stale := stored
	stale.Version = 99
	if err := s.Put(ctx, stale); model.CodeOf(err) != model.ErrConflict {
		t.Fatalf("stale update = %v, want CONFLICT", err)
	}

	stored.Rights["editor"] = true
	if err := s.Put(ctx, stored); err != nil {
		t.Fatalf("update error: %v", err)
	}
}

func TestMemoryGrantStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryGrantStore()
	ctx := context.Background()

	if err := s.Put(ctx, model.Grant{
		GranteeID:   "alice",
		EntityType:  "actionset",
		EntityValue: "as-1",
		Rights:      map[string]bool{"owner": true},
	}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	g, _ := s.Get(ctx, "alice", "actionset", "as-1")
	g.Rights["owner"] = false

	again, _ := s.Get(ctx, "alice", "actionset", "as-1")
	if !again.Holds("owner") {
		t.Error("mutating a returned grant must not affect the store")
	}
}

func TestMemoryGrantStore_GetNotFound(t *testing.T) {
	s := NewMemoryGrantStore()
	_, err := s.Get(context.Background(), "ghost", "actionset", "as-1")
	if model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("Get(absent) = %v, want NOT_FOUND", err)
	}
}
