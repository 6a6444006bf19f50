package rights

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tixgate/actionset/model"
)

// MemoryGrantStore is an in-memory GrantStore for testing and single-node
// deployments.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]model.Grant // key: grantee|entityType|entityValue

	lockMu      sync.Mutex
	entityLocks map[string]*sync.Mutex
}

// NewMemoryGrantStore creates a new in-memory grant store.
func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{
		grants:      make(map[string]model.Grant),
		entityLocks: make(map[string]*sync.Mutex),
	}
}

func grantKey(grantee, entityType, entityValue string) string {
	return grantee + "|" + entityType + "|" + entityValue
}

// Get retrieves a grant row.
func (s *MemoryGrantStore) Get(_ context.Context, grantee, entityType, entityValue string) (model.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[grantKey(grantee, entityType, entityValue)]
	if !ok {
		return model.Grant{}, model.NewNotFoundError(
			fmt.Sprintf("no grant for %q on %s/%s", grantee, entityType, entityValue),
		)
	}
	return copyGrant(g), nil
}

// Grants retrieves all grant rows on one entity instance.
func (s *MemoryGrantStore) Grants(_ context.Context, entityType, entityValue string) ([]model.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Grant
	for _, g := range s.grants {
		if g.EntityType == entityType && g.EntityValue == entityValue {
			result = append(result, copyGrant(g))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GranteeID < result[j].GranteeID
	})
	return result, nil
}

// Put persists a grant row with optimistic locking.
func (s *MemoryGrantStore) Put(_ context.Context, grant model.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey(grant.GranteeID, grant.EntityType, grant.EntityValue)
	existing, exists := s.grants[key]

	if grant.Version == 0 {
		if exists {
			return model.NewConflictError(
				fmt.Sprintf("grant for %q on %s/%s already exists", grant.GranteeID, grant.EntityType, grant.EntityValue),
			)
		}
		grant.CreatedAt = time.Now().UTC()
	} else if !exists || existing.Version != grant.Version {
		return model.NewConflictError(
			fmt.Sprintf("grant for %q on %s/%s version conflict", grant.GranteeID, grant.EntityType, grant.EntityValue),
		)
	}

	grant.Version++
	grant.UpdatedAt = time.Now().UTC()
	s.grants[key] = copyGrant(grant)
	return nil
}

// WithEntityLock serializes writers per entity instance.
func (s *MemoryGrantStore) WithEntityLock(ctx context.Context, entityType, entityValue string, fn func(ctx context.Context) error) error {
	key := entityType + "|" + entityValue

	s.lockMu.Lock()
	lock, ok := s.entityLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.entityLocks[key] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// Len returns the number of grant rows. For testing.
func (s *MemoryGrantStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

func copyGrant(g model.Grant) model.Grant {
	rights := make(map[string]bool, len(g.Rights))
	for k, v := range g.Rights {
		rights[k] = v
	}
	g.Rights = rights
	return g
}
