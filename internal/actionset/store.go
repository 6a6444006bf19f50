package actionset

import (
	"context"

	"github.com/tixgate/actionset/model"
)

// Store persists ActionSet instances. Implementations use optimistic locking
// on Version for updates and an atomic compare-and-set for the consumption
// flag, so the completion callback can fire exactly once per set.
type Store interface {
	// Create inserts a new set. The caller assigns the ID; the store sets
	// Version to 1 and the timestamps. A duplicate ID is a CONFLICT.
	Create(ctx context.Context, set *model.ActionSet) error

	// Get retrieves one set by tenant and ID. Absent sets are NOT_FOUND.
	Get(ctx context.Context, tenantID, id string) (model.ActionSet, error)

	// List returns summaries of the owner's sets in a tenant, newest first.
	List(ctx context.Context, tenantID, owner string) ([]model.ActionSetSummary, error)

	// Update persists a modified set if set.Version still matches the stored
	// row, then bumps the version. A mismatch is a CONFLICT; callers retry
	// from a fresh Get.
	Update(ctx context.Context, set *model.ActionSet) error

	// Consume flips the consumed flag from false to true. It returns true
	// only for the single call that performed the flip, regardless of how
	// many callers race on it.
	Consume(ctx context.Context, tenantID, id string) (bool, error)
}
