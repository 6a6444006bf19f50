package rights

import (
	"context"

	"github.com/tixgate/actionset/model"
)

// GrantStore persists grant rows. Rows are keyed by (grantee, entityType,
// entityValue) and carry an optimistic version; a revoke clears booleans but
// never deletes a row.
type GrantStore interface {
	// Get retrieves the grant row for one grantee on one entity instance.
	// Returns NOT_FOUND if no row exists.
	Get(ctx context.Context, grantee, entityType, entityValue string) (model.Grant, error)

	// Grants retrieves every grant row on one entity instance.
	Grants(ctx context.Context, entityType, entityValue string) ([]model.Grant, error)

	// Put persists a grant row with optimistic locking. Version zero inserts
	// a new row; a non-zero version must match the stored one. Returns
	// CONFLICT when the predicate fails.
	Put(ctx context.Context, grant model.Grant) error

	// WithEntityLock runs fn while holding the per-entity write lock, so a
	// cap check and the grant write it guards form one atomic step. Reads
	// and writes inside fn must use the context it receives.
	WithEntityLock(ctx context.Context, entityType, entityValue string, fn func(ctx context.Context) error) error
}
