package rights

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tixgate/actionset/model"
)

// Engine answers "can principal P perform right R on entity (type, id)?" and
// mutates grants. It implements model.RightsChecker and model.RightsGranter.
type Engine struct {
	cfg    *Config
	store  GrantStore
	logger *zap.Logger
}

// NewEngine creates a rights engine over the given declaration and store.
func NewEngine(cfg *Config, store GrantStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, store: store, logger: logger}
}

// Check reports whether the principal may perform the named right. Public
// rights pass immediately; otherwise the grant row must carry the right
// directly or through another held right's count_as closure.
func (e *Engine) Check(ctx context.Context, principal, entityType, entityValue, right string) (bool, error) {
	if def, ok := e.cfg.Get(entityType, right); ok && def.Public {
		return true, nil
	}

	grant, err := e.store.Get(ctx, principal, entityType, entityValue)
	if err != nil {
		if model.CodeOf(err) == model.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if grant.Holds(right) {
		return true, nil
	}
	for held, set := range grant.Rights {
		if set && held != right && e.cfg.Implies(entityType, held, right) {
			return true, nil
		}
	}
	return false, nil
}

// CheckAny reports whether the principal holds any right on the entity, or
// whether the entity type declares a public right.
func (e *Engine) CheckAny(ctx context.Context, principal, entityType, entityValue string) (bool, error) {
	if e.cfg.HasPublic(entityType) {
		return true, nil
	}

	grant, err := e.store.Get(ctx, principal, entityType, entityValue)
	if err != nil {
		if model.CodeOf(err) == model.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	for _, set := range grant.Rights {
		if set {
			return true, nil
		}
	}
	return false, nil
}

// Grant gives principal the named right on the entity instance.
//
// The actor must hold a right with can_edit_rights on the same entity;
// bootstrap skips that check for the entity-creation special case. Count
// caps are enforced for the named right only: count_as implied rights are
// set true on the same row without counting against their own caps. That
// asymmetry mirrors long-standing behavior that workflow configurations
// depend on; see the rights declaration documentation before changing it.
func (e *Engine) Grant(ctx context.Context, actor, principal, entityType, entityValue, right string, bootstrap bool) error {
	def, ok := e.cfg.Get(entityType, right)
	if !ok {
		return model.NewBadRequestError(
			fmt.Sprintf("right %q is not declared for entity type %q", right, entityType),
		)
	}

	return e.store.WithEntityLock(ctx, entityType, entityValue, func(ctx context.Context) error {
		if !bootstrap {
			allowed, err := e.actorCanEditRights(ctx, actor, entityType, entityValue)
			if err != nil {
				return err
			}
			if !allowed {
				return model.NewForbiddenError("denied")
			}
		}

		row, err := e.store.Get(ctx, principal, entityType, entityValue)
		if err != nil {
			if model.CodeOf(err) != model.ErrNotFound {
				return err
			}
			row = model.Grant{
				GranteeID:   principal,
				EntityType:  entityType,
				EntityValue: entityValue,
				Rights:      make(map[string]bool),
			}
		}

		if def.Count > 0 && !row.Holds(right) {
			holders, err := e.countHolders(ctx, entityType, entityValue, right)
			if err != nil {
				return err
			}
			if holders >= def.Count {
				return model.NewRightLimitExceededError(
					fmt.Sprintf("right %q on %s/%s is limited to %d holder(s)", right, entityType, entityValue, def.Count),
				)
			}
		}

		if row.Rights == nil {
			row.Rights = make(map[string]bool)
		}
		row.Rights[right] = true
		for _, implied := range e.cfg.Closure(entityType, right) {
			row.Rights[implied] = true
		}

		if err := e.store.Put(ctx, row); err != nil {
			return err
		}

		e.logger.Info("right granted",
			zap.String("actor", actor),
			zap.String("principal", principal),
			zap.String("entity_type", entityType),
			zap.String("entity_value", entityValue),
			zap.String("right", right),
			zap.Bool("bootstrap", bootstrap),
		)
		return nil
	})
}

// Revoke clears the named right on the principal's grant row. The row is
// kept for auditability and count_as implied rights are left untouched.
func (e *Engine) Revoke(ctx context.Context, actor, principal, entityType, entityValue, right string) error {
	if _, ok := e.cfg.Get(entityType, right); !ok {
		return model.NewBadRequestError(
			fmt.Sprintf("right %q is not declared for entity type %q", right, entityType),
		)
	}

	return e.store.WithEntityLock(ctx, entityType, entityValue, func(ctx context.Context) error {
		allowed, err := e.actorCanEditRights(ctx, actor, entityType, entityValue)
		if err != nil {
			return err
		}
		if !allowed {
			return model.NewForbiddenError("denied")
		}

		row, err := e.store.Get(ctx, principal, entityType, entityValue)
		if err != nil {
			return err
		}

		if !row.Holds(right) {
			return nil // Already clear.
		}
		row.Rights[right] = false

		if err := e.store.Put(ctx, row); err != nil {
			return err
		}

		e.logger.Info("right revoked",
			zap.String("actor", actor),
			zap.String("principal", principal),
			zap.String("entity_type", entityType),
			zap.String("entity_value", entityValue),
			zap.String("right", right),
		)
		return nil
	})
}

// actorCanEditRights reports whether the actor holds any right declared with
// can_edit_rights on the entity.
func (e *Engine) actorCanEditRights(ctx context.Context, actor, entityType, entityValue string) (bool, error) {
	grant, err := e.store.Get(ctx, actor, entityType, entityValue)
	if err != nil {
		if model.CodeOf(err) == model.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	for held, set := range grant.Rights {
		if !set {
			continue
		}
		if def, ok := e.cfg.Get(entityType, held); ok && def.CanEditRights {
			return true, nil
		}
	}
	return false, nil
}

// countHolders counts grantees currently holding the named right true on the
// entity. Must run inside the entity lock so the count stays valid until the
// guarded write lands.
func (e *Engine) countHolders(ctx context.Context, entityType, entityValue, right string) (int, error) {
	grants, err := e.store.Grants(ctx, entityType, entityValue)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range grants {
		if g.Holds(right) {
			n++
		}
	}
	return n, nil
}

// Snapshot returns the rights currently held per principal on one entity,
// used to stamp a newly built ActionSet's rights record.
func (e *Engine) Snapshot(ctx context.Context, entityType, entityValue string) (map[string][]string, error) {
	grants, err := e.store.Grants(ctx, entityType, entityValue)
	if err != nil {
		return nil, err
	}

	snap := make(map[string][]string, len(grants))
	for _, g := range grants {
		var held []string
		for right, set := range g.Rights {
			if set {
				held = append(held, right)
			}
		}
		if len(held) > 0 {
			sort.Strings(held)
			snap[g.GranteeID] = held
		}
	}
	return snap, nil
}
