package actionset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tixgate/actionset/model"
)

// MemoryStore is an in-memory Store used in tests and single-node
// deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]model.ActionSet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]model.ActionSet)}
}

func setKey(tenantID, id string) string {
	return tenantID + "|" + id
}

// Create inserts a new set with version 1.
func (s *MemoryStore) Create(_ context.Context, set *model.ActionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := setKey(set.TenantID, set.ID)
	if _, exists := s.sets[key]; exists {
		return model.NewConflictError(fmt.Sprintf("action set %q already exists", set.ID))
	}

	now := time.Now().UTC()
	set.Version = 1
	set.CreatedAt = now
	set.UpdatedAt = now
	s.sets[key] = copySet(*set)
	return nil
}

// Get retrieves a set by tenant and ID.
func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (model.ActionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[setKey(tenantID, id)]
	if !ok {
		return model.ActionSet{}, model.NewNotFoundError(fmt.Sprintf("action set %q not found", id))
	}
	return copySet(set), nil
}

// List returns the owner's sets in a tenant, newest first.
func (s *MemoryStore) List(_ context.Context, tenantID, owner string) ([]model.ActionSetSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ActionSetSummary
	for _, set := range s.sets {
		if set.TenantID == tenantID && set.Owner == owner {
			out = append(out, set.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update persists a set if the version still matches, then bumps it.
func (s *MemoryStore) Update(_ context.Context, set *model.ActionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := setKey(set.TenantID, set.ID)
	stored, ok := s.sets[key]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("action set %q not found", set.ID))
	}
	if stored.Version != set.Version {
		return model.NewConflictError(
			fmt.Sprintf("action set %q version conflict (expected %d, have %d)", set.ID, set.Version, stored.Version),
		)
	}

	set.Version++
	set.UpdatedAt = time.Now().UTC()
	s.sets[key] = copySet(*set)
	return nil
}

// Consume flips the consumed flag false to true under the store lock.
func (s *MemoryStore) Consume(_ context.Context, tenantID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := setKey(tenantID, id)
	stored, ok := s.sets[key]
	if !ok {
		return false, model.NewNotFoundError(fmt.Sprintf("action set %q not found", id))
	}
	if stored.Consumed {
		return false, nil
	}

	stored.Consumed = true
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.sets[key] = stored
	return true, nil
}

func copySet(set model.ActionSet) model.ActionSet {
	out := set
	out.Actions = make([]model.Action, len(set.Actions))
	for i, a := range set.Actions {
		out.Actions[i] = copyAction(a)
	}
	if set.Rights != nil {
		out.Rights = make(map[string][]string, len(set.Rights))
		for k, v := range set.Rights {
			out.Rights[k] = append([]string(nil), v...)
		}
	}
	if set.Meta != nil {
		out.Meta = make(map[string]any, len(set.Meta))
		for k, v := range set.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

func copyAction(a model.Action) model.Action {
	out := a
	if a.Data != nil {
		out.Data = make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			out.Data[k] = v
		}
	}
	if a.Error != nil {
		out.Error = make(map[string]any, len(a.Error))
		for k, v := range a.Error {
			out.Error[k] = v
		}
	}
	return out
}
