package model

import (
	"context"
	"time"
)

// EntityTypeActionSet is the entity type under which ActionSet instances are
// protected by the rights engine.
const EntityTypeActionSet = "actionset"

// RightDef is the static declaration of one named right on an entity type.
type RightDef struct {
	// Count caps how many grantees may hold this right true on one entity
	// instance at the same time. Zero means unlimited.
	Count int `yaml:"count"`
	// CanEditRights allows a holder to grant and revoke rights on the same
	// entity, bounded by the same caps.
	CanEditRights bool `yaml:"can_edit_rights"`
	// Public means no grant row is required; any caller passes the check.
	Public bool `yaml:"public"`
	// CountAs lists other right names implicitly granted alongside this one.
	CountAs []string `yaml:"count_as"`
}

// RightsConfig declares the right vocabulary per entity type. It is loaded
// once at startup and immutable afterwards.
type RightsConfig map[string]map[string]RightDef

// Get returns the declaration of a right on an entity type.
func (c RightsConfig) Get(entityType, right string) (RightDef, bool) {
	rights, ok := c[entityType]
	if !ok {
		return RightDef{}, false
	}
	def, ok := rights[right]
	return def, ok
}

// Grant is the persisted record of rights held by one principal on one
// entity instance. Revokes clear booleans in Rights; the row itself is never
// deleted, so the record stays auditable.
type Grant struct {
	GranteeID   string          `json:"grantee_id"`
	EntityType  string          `json:"entity_type"`
	EntityValue string          `json:"entity_value"`
	Rights      map[string]bool `json:"rights"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// Holds returns true if the grant row carries the named right directly.
func (g Grant) Holds(right string) bool {
	return g.Rights[right]
}

// RightsChecker answers authorization questions. The actionset engine
// consumes this narrow interface rather than the full engine so tests can
// swap in a fake.
type RightsChecker interface {
	// Check reports whether the principal may perform the named right on the
	// entity instance. Public rights pass with no grant row present.
	Check(ctx context.Context, principal, entityType, entityValue, right string) (bool, error)

	// CheckAny reports whether the principal holds at least one right, of
	// any name, on the entity instance.
	CheckAny(ctx context.Context, principal, entityType, entityValue string) (bool, error)
}

// RightsGranter mutates grants. Builders use it to bootstrap the creator's
// rights on a freshly built entity.
type RightsGranter interface {
	// Grant gives principal the named right on the entity. The actor must
	// hold can_edit_rights on the same entity unless bootstrap is set for
	// the entity-creation special case.
	Grant(ctx context.Context, actor, principal, entityType, entityValue, right string, bootstrap bool) error

	// Revoke clears the named right. It does not cascade to count_as
	// implied rights.
	Revoke(ctx context.Context, actor, principal, entityType, entityValue, right string) error
}
