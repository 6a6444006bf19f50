// Package registry holds the named workflow definitions: a Builder that
// materializes the action list for a new ActionSet and an optional Lifecycle
// invoked after the set is consumed. Registration happens once during startup
// wiring; lookups afterwards are read-only.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tixgate/actionset/model"
)

// CheckSpec describes the validation applied to one action's submitted data:
// a structural schema and the fields the workflow requires for completeness.
type CheckSpec struct {
	Schema   *openapi3.Schema
	Required []string
}

// Builder materializes the initial action list for a named workflow and
// declares the checks each action's data must satisfy.
type Builder interface {
	// Name is the workflow name this builder serves, e.g. "cart_checkout".
	Name() string

	// Build returns the ordered actions for a fresh set. Args carry
	// caller-supplied creation parameters; the builder validates them and
	// may reject the creation with a BAD_REQUEST envelope.
	Build(ctx context.Context, rctx model.RequestContext, args map[string]any) ([]model.Action, error)

	// Checks returns the validation spec for the named action. The second
	// return is false when the action accepts no caller data.
	Checks(action string) (CheckSpec, bool)
}

// Lifecycle receives the completion callback after a set is consumed. The
// callback runs at least once; implementations must tolerate replays.
type Lifecycle interface {
	// Name is the workflow name this lifecycle serves.
	Name() string

	// OnComplete runs after the set's consumption flag flips. Errors are
	// logged and retried by the dispatcher; they never roll the flag back.
	OnComplete(ctx context.Context, set model.ActionSet) error
}

// Registry maps workflow names to their Builder and Lifecycle
// implementations.
type Registry struct {
	builders   map[string]Builder
	lifecycles map[string]Lifecycle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		builders:   make(map[string]Builder),
		lifecycles: make(map[string]Lifecycle),
	}
}

// RegisterBuilder adds a builder. Registering two builders under one name is
// a wiring bug and fails.
func (r *Registry) RegisterBuilder(b Builder) error {
	name := b.Name()
	if name == "" {
		return fmt.Errorf("builder with empty name")
	}
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("duplicate builder for workflow %q", name)
	}
	r.builders[name] = b
	return nil
}

// RegisterLifecycle adds a lifecycle hook for a workflow name.
func (r *Registry) RegisterLifecycle(l Lifecycle) error {
	name := l.Name()
	if name == "" {
		return fmt.Errorf("lifecycle with empty name")
	}
	if _, exists := r.lifecycles[name]; exists {
		return fmt.Errorf("duplicate lifecycle for workflow %q", name)
	}
	r.lifecycles[name] = l
	return nil
}

// Builder resolves the builder for a workflow name. Unknown names yield a
// NOT_FOUND envelope so creation requests fail cleanly at the API surface.
func (r *Registry) Builder(name string) (Builder, error) {
	b, ok := r.builders[name]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown workflow %q", name))
	}
	return b, nil
}

// Lifecycle resolves the lifecycle hook for a workflow name. Workflows
// without side effects have none.
func (r *Registry) Lifecycle(name string) (Lifecycle, bool) {
	l, ok := r.lifecycles[name]
	return l, ok
}

// Names returns the registered workflow names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate verifies the registry is internally consistent: every lifecycle
// belongs to a registered builder. Run once at startup after wiring; a
// failure here means the binary is misassembled and must not serve.
func (r *Registry) Validate() error {
	for name := range r.lifecycles {
		if _, ok := r.builders[name]; !ok {
			return fmt.Errorf("lifecycle registered for unknown workflow %q", name)
		}
	}
	return nil
}
