// Package actionset implements the workflow state machine: ordered actions
// inside a set, caller submits validated by the checks runner, derived set
// status, and the single-shot consumption fence that triggers the workflow's
// completion side effects.
package actionset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tixgate/actionset/internal/checks"
	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/model"
)

// casRetries bounds re-reads on optimistic version conflicts.
const casRetries = 3

// RightsService is the slice of the rights engine the workflow engine needs:
// authorization checks, the creation-time bootstrap grant, and the snapshot
// stamped onto new sets.
type RightsService interface {
	model.RightsChecker
	model.RightsGranter
	Snapshot(ctx context.Context, entityType, entityValue string) (map[string][]string, error)
}

// Completer receives completion callbacks for consumed sets, at least once
// each. The dispatch queue implements it.
type Completer interface {
	EnqueueCompletion(ctx context.Context, set model.ActionSet) error
}

// Options names the rights required by engine operations. Right names are
// deployment vocabulary, declared in the rights configuration, so they are
// injected rather than hardcoded.
type Options struct {
	// OwnerRight is bootstrap-granted to the creator of a new set.
	OwnerRight string
	// EditRight is required for caller submits.
	EditRight string
	// SystemRight is required for Confirm and Fail.
	SystemRight string
	// SystemPrincipals are service identities bootstrap-granted SystemRight
	// on every new set, so downstream confirmations can authorize.
	SystemPrincipals []string
	// Metrics receives engine instrumentation when set.
	Metrics *observability.Metrics
}

func (o *Options) defaults() {
	if o.OwnerRight == "" {
		o.OwnerRight = "owner"
	}
	if o.EditRight == "" {
		o.EditRight = "editor"
	}
	if o.SystemRight == "" {
		o.SystemRight = "system"
	}
}

// Engine coordinates the ActionSet lifecycle across the store, the rights
// engine, the checks runner, and the workflow registry.
type Engine struct {
	store     Store
	registry  *registry.Registry
	rights    RightsService
	runner    *checks.Runner
	completer Completer
	opts      Options
	logger    *zap.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(store Store, reg *registry.Registry, rights RightsService, completer Completer, opts Options, logger *zap.Logger) *Engine {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     store,
		registry:  reg,
		rights:    rights,
		runner:    checks.NewRunner(),
		completer: completer,
		opts:      opts,
		logger:    logger,
	}
}

// Create builds a new set for the named workflow. The builder materializes
// the action list, the creator receives the owner right by bootstrap grant,
// and the resulting rights snapshot is stamped onto the stored set.
func (e *Engine) Create(ctx context.Context, rctx *model.RequestContext, name string, args map[string]any) (model.ActionSet, error) {
	if err := rctx.Validate(); err != nil {
		return model.ActionSet{}, model.NewUnauthorizedError(err.Error())
	}

	status := "error"
	if e.opts.Metrics != nil {
		defer func() { e.opts.Metrics.RecordSetCreate(name, status) }()
	}

	builder, err := e.registry.Builder(name)
	if err != nil {
		return model.ActionSet{}, err
	}

	actions, err := builder.Build(ctx, *rctx, args)
	if err != nil {
		return model.ActionSet{}, err
	}
	if len(actions) == 0 {
		return model.ActionSet{}, model.NewInternalError()
	}
	for i := range actions {
		if actions[i].Status == "" {
			actions[i].Status = model.ActionStatusPending
		}
	}

	id := uuid.NewString()
	if err := e.rights.Grant(ctx, rctx.SubjectID, rctx.SubjectID, model.EntityTypeActionSet, id, e.opts.OwnerRight, true); err != nil {
		return model.ActionSet{}, err
	}
	for _, principal := range e.opts.SystemPrincipals {
		if err := e.rights.Grant(ctx, rctx.SubjectID, principal, model.EntityTypeActionSet, id, e.opts.SystemRight, true); err != nil {
			return model.ActionSet{}, err
		}
	}
	stamp, err := e.rights.Snapshot(ctx, model.EntityTypeActionSet, id)
	if err != nil {
		return model.ActionSet{}, err
	}

	set := model.ActionSet{
		ID:       id,
		Name:     name,
		TenantID: rctx.TenantID,
		Owner:    rctx.SubjectID,
		Rights:   stamp,
		Meta:     args,
		Actions:  actions,
	}
	if err := e.store.Create(ctx, &set); err != nil {
		return model.ActionSet{}, err
	}

	e.logger.Info("action set created",
		zap.String("id", set.ID),
		zap.String("name", name),
		zap.String("tenant_id", rctx.TenantID),
		zap.String("owner", rctx.SubjectID),
		zap.Int("actions", len(actions)),
	)
	status = "ok"
	return set, nil
}

// Get fetches one set. The caller must hold at least one right on it; a
// caller with none receives NOT_FOUND so existence is not revealed.
func (e *Engine) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.ActionSet, error) {
	set, err := e.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.ActionSet{}, err
	}

	ok, err := e.rights.CheckAny(ctx, rctx.SubjectID, model.EntityTypeActionSet, id)
	if err != nil {
		return model.ActionSet{}, err
	}
	if !ok {
		return model.ActionSet{}, model.NewNotFoundError(fmt.Sprintf("action set %q not found", id))
	}
	return set, nil
}

// List returns summaries of the caller's own sets in the tenant.
func (e *Engine) List(ctx context.Context, rctx *model.RequestContext) ([]model.ActionSetSummary, error) {
	return e.store.List(ctx, rctx.TenantID, rctx.SubjectID)
}

// Update submits caller data to one action. With no index the lowest
// non-terminal action is targeted; a failed action can be retried by
// addressing it explicitly. The data passes the two-phase checks before any
// state changes: a failed check returns the validation envelope and leaves
// the set untouched. On success an input action completes and a deferred
// action moves to waiting; if the submit completes the whole set, the
// consumption fence fires.
func (e *Engine) Update(ctx context.Context, rctx *model.RequestContext, id string, index *int, data map[string]any) (model.ActionSet, error) {
	start := time.Now()
	var set model.ActionSet
	err := e.withRetry(func() error {
		var err error
		set, err = e.authorize(ctx, rctx, id, e.opts.EditRight)
		if err != nil {
			return err
		}
		if set.Consumed {
			return model.NewAlreadyConsumedError(fmt.Sprintf("action set %q is already consumed", id))
		}

		idx, err := resolveIndex(&set, index)
		if err != nil {
			return err
		}
		action := &set.Actions[idx]
		if !action.Editable() {
			return model.NewNoEditableActionError(
				fmt.Sprintf("action %d (%s) does not accept submits", idx, action.Name),
			)
		}
		if action.Status == model.ActionStatusDone {
			return model.NewNoEditableActionError(
				fmt.Sprintf("action %d (%s) is already done", idx, action.Name),
			)
		}

		builder, err := e.registry.Builder(set.Name)
		if err != nil {
			return err
		}
		validated := data
		if spec, ok := builder.Checks(action.Name); ok {
			result := e.runner.Run(data, spec.Schema, spec.Required)
			if !result.OK() {
				env := result.Envelope()
				if m := e.opts.Metrics; m != nil {
					outcome := "error"
					if env.Code == model.ErrIncomplete {
						outcome = "incomplete"
					}
					m.RecordChecksFailure(set.Name, outcome)
				}
				return env
			}
			validated = result.Result
		}

		action.Data = validated
		action.Error = nil
		switch action.Type {
		case model.ActionTypeDeferred:
			action.Status = model.ActionStatusWaiting
		default:
			action.Status = model.ActionStatusDone
		}

		return e.store.Update(ctx, &set)
	})
	if m := e.opts.Metrics; m != nil && set.Name != "" {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.RecordSetUpdate(set.Name, outcome, time.Since(start))
	}
	if err != nil {
		return model.ActionSet{}, err
	}

	e.maybeComplete(ctx, &set)
	return set, nil
}

// Confirm completes one action from the system side, merging result data.
// Deferred actions leave waiting this way and computed actions complete only
// this way. The caller must hold the system right.
func (e *Engine) Confirm(ctx context.Context, rctx *model.RequestContext, id string, index int, data map[string]any) (model.ActionSet, error) {
	var set model.ActionSet
	err := e.withRetry(func() error {
		var err error
		set, err = e.authorize(ctx, rctx, id, e.opts.SystemRight)
		if err != nil {
			return err
		}
		if set.Consumed {
			return model.NewAlreadyConsumedError(fmt.Sprintf("action set %q is already consumed", id))
		}
		if index < 0 || index >= len(set.Actions) {
			return model.NewInvalidIndexError(
				fmt.Sprintf("index %d out of range for %d actions", index, len(set.Actions)),
			)
		}

		action := &set.Actions[index]
		if action.Terminal() {
			return model.NewConflictError(
				fmt.Sprintf("action %d (%s) is already %s", index, action.Name, action.Status),
			)
		}

		if action.Data == nil && len(data) > 0 {
			action.Data = make(map[string]any, len(data))
		}
		for k, v := range data {
			action.Data[k] = v
		}
		action.Status = model.ActionStatusDone
		action.Error = nil

		return e.store.Update(ctx, &set)
	})
	if err != nil {
		return model.ActionSet{}, err
	}

	e.maybeComplete(ctx, &set)
	return set, nil
}

// Fail marks one action as failed with diagnostic detail. The set derives
// status error and is never consumed while the failure stands; a caller can
// revive it by resubmitting the failed action with an explicit index.
func (e *Engine) Fail(ctx context.Context, rctx *model.RequestContext, id string, index int, errInfo map[string]any) (model.ActionSet, error) {
	var set model.ActionSet
	err := e.withRetry(func() error {
		var err error
		set, err = e.authorize(ctx, rctx, id, e.opts.SystemRight)
		if err != nil {
			return err
		}
		if set.Consumed {
			return model.NewAlreadyConsumedError(fmt.Sprintf("action set %q is already consumed", id))
		}
		if index < 0 || index >= len(set.Actions) {
			return model.NewInvalidIndexError(
				fmt.Sprintf("index %d out of range for %d actions", index, len(set.Actions)),
			)
		}

		action := &set.Actions[index]
		action.Status = model.ActionStatusError
		action.Error = errInfo

		return e.store.Update(ctx, &set)
	})
	if err != nil {
		return model.ActionSet{}, err
	}

	e.logger.Warn("action failed",
		zap.String("id", id),
		zap.Int("index", index),
	)
	return set, nil
}

// authorize loads the set and verifies the caller holds the named right.
// Callers with no rights at all get NOT_FOUND; callers with some right but
// not the required one get a bare FORBIDDEN.
func (e *Engine) authorize(ctx context.Context, rctx *model.RequestContext, id, right string) (model.ActionSet, error) {
	set, err := e.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.ActionSet{}, err
	}

	held, err := e.rights.CheckAny(ctx, rctx.SubjectID, model.EntityTypeActionSet, id)
	if err != nil {
		return model.ActionSet{}, err
	}
	if !held {
		if m := e.opts.Metrics; m != nil {
			m.RecordRightsDecision(model.EntityTypeActionSet, false)
		}
		return model.ActionSet{}, model.NewNotFoundError(fmt.Sprintf("action set %q not found", id))
	}

	ok, err := e.rights.Check(ctx, rctx.SubjectID, model.EntityTypeActionSet, id, right)
	if err != nil {
		return model.ActionSet{}, err
	}
	if m := e.opts.Metrics; m != nil {
		m.RecordRightsDecision(model.EntityTypeActionSet, ok)
	}
	if !ok {
		return model.ActionSet{}, model.NewForbiddenError("denied")
	}
	return set, nil
}

// resolveIndex picks the action a submit targets: the explicit index when
// given, otherwise the lowest non-terminal action.
func resolveIndex(set *model.ActionSet, index *int) (int, error) {
	if index == nil {
		idx := set.CurrentIndex()
		if idx < 0 {
			return 0, model.NewNoEditableActionError("every action is terminal")
		}
		return idx, nil
	}
	if *index < 0 || *index >= len(set.Actions) {
		return 0, model.NewInvalidIndexError(
			fmt.Sprintf("index %d out of range for %d actions", *index, len(set.Actions)),
		)
	}
	return *index, nil
}

// withRetry runs fn, re-running it on optimistic version conflicts. fn must
// re-read all state it depends on.
func (e *Engine) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < casRetries; attempt++ {
		err = fn()
		if err == nil || model.CodeOf(err) != model.ErrConflict {
			return err
		}
	}
	return err
}

// maybeComplete fires the consumption fence when every action is done. The
// store's compare-and-set guarantees at most one caller wins the flip, and
// only the winner enqueues the completion callback. The flip is never rolled
// back: an enqueue failure is logged, and delivery past the queue is the
// dispatcher's at-least-once problem.
func (e *Engine) maybeComplete(ctx context.Context, set *model.ActionSet) {
	if !set.AllDone() || set.Consumed {
		return
	}

	flipped, err := e.store.Consume(ctx, set.TenantID, set.ID)
	if err != nil {
		e.logger.Error("consumption flip failed",
			zap.String("id", set.ID),
			zap.Error(err),
		)
		return
	}
	if !flipped {
		set.Consumed = true
		return
	}

	set.Consumed = true
	set.Version++
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordConsumption(set.Name)
	}

	if e.completer != nil {
		if err := e.completer.EnqueueCompletion(ctx, *set); err != nil {
			e.logger.Error("completion enqueue failed",
				zap.String("id", set.ID),
				zap.String("name", set.Name),
				zap.Error(err),
			)
			return
		}
	}

	e.logger.Info("action set consumed",
		zap.String("id", set.ID),
		zap.String("name", set.Name),
	)
}
