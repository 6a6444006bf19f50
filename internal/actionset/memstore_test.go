package actionset

import (
	"context"
	"sync"
	"testing"

	"github.com/tixgate/actionset/model"
)

func seedSet(t *testing.T, s Store, id string) model.ActionSet {
	t.Helper()
	set := model.ActionSet{
		ID:       id,
		Name:     "test_flow",
		TenantID: "t1",
		Owner:    "alice",
		Actions: []model.Action{
			{Name: "details", Type: model.ActionTypeInput, Status: model.ActionStatusPending},
		},
	}
	if err := s.Create(context.Background(), &set); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return set
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	seedSet(t, s, "as-1")

	dup := model.ActionSet{ID: "as-1", TenantID: "t1", Actions: []model.Action{{Name: "x"}}}
	if err := s.Create(context.Background(), &dup); model.CodeOf(err) != model.ErrConflict {
		t.Fatalf("duplicate Create = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_UpdateVersioning(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	set := seedSet(t, s, "as-1")

	stale := set
	set.Actions[0].Status = model.ActionStatusDone
	if err := s.Update(ctx, &set); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if set.Version != 2 {
		t.Errorf("version = %d, want 2", set.Version)
	}

	stale.Actions = []model.Action{{Name: "details", Status: model.ActionStatusError}}
	if err := s.Update(ctx, &stale); model.CodeOf(err) != model.ErrConflict {
		t.Fatalf("stale Update = %v, want CONFLICT", err)
	}

	stored, err := s.Get(ctx, "t1", "as-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if stored.Actions[0].Status != model.ActionStatusDone {
		t.Errorf("stored status = %q, stale write must not land", stored.Actions[0].Status)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSet(t, s, "as-1")

	got, _ := s.Get(ctx, "t1", "as-1")
	got.Actions[0].Status = model.ActionStatusError

	again, _ := s.Get(ctx, "t1", "as-1")
	if again.Actions[0].Status != model.ActionStatusPending {
		t.Error("mutating a returned set must not affect the store")
	}
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	s := NewMemoryStore()
	seedSet(t, s, "as-1")

	if _, err := s.Get(context.Background(), "t2", "as-1"); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("cross-tenant Get = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStore_ConsumeFlipsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSet(t, s, "as-1")

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := s.Consume(ctx, "t1", "as-1")
			if err != nil {
				t.Errorf("Consume error: %v", err)
				return
			}
			wins <- flipped
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for flipped := range wins {
		if flipped {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("Consume flipped %d times, want exactly 1", won)
	}

	stored, err := s.Get(ctx, "t1", "as-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !stored.Consumed {
		t.Error("set should be consumed")
	}
}
