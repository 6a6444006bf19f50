// Package event wires the event publication workflow: details and schedule
// capture followed by a computed publish step.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/model"
)

// FlowCreate is the workflow name served by this package.
const FlowCreate = "event_create"

const (
	actionDetails  = "event_details"
	actionSchedule = "schedule"
	actionPublish  = "publish"
)

// Event is the published event record.
type Event struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Organizer string    `json:"organizer"`
	Title     string    `json:"title"`
	Capacity  int       `json:"capacity"`
	StartsAt  string    `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher records published events. Implementations must be idempotent per
// event ID.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// MemoryPublisher stores published events in memory.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events map[string]Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{events: make(map[string]Event)}
}

func (p *MemoryPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.events[ev.ID]; exists {
		return nil
	}
	ev.CreatedAt = time.Now().UTC()
	p.events[ev.ID] = ev
	return nil
}

// Get returns a published event by ID.
func (p *MemoryPublisher) Get(id string) (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ev, ok := p.events[id]
	return ev, ok
}

// Len reports the published event count.
func (p *MemoryPublisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.events)
}

func detailsSchema() *openapi3.Schema {
	capacity := openapi3.NewIntegerSchema().WithMin(1)
	capacity.Default = 100

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"title":    openapi3.NewStringSchema().WithMinLength(1).NewRef(),
		"capacity": capacity.NewRef(),
	}
	return s
}

func scheduleSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"starts_at": openapi3.NewStringSchema().WithFormat("date-time").NewRef(),
	}
	return s
}

// Builder serves the event_create flow.
type Builder struct{}

func (Builder) Name() string { return FlowCreate }

func (Builder) Build(context.Context, model.RequestContext, map[string]any) ([]model.Action, error) {
	return []model.Action{
		{Name: actionDetails, Type: model.ActionTypeInput},
		{Name: actionSchedule, Type: model.ActionTypeInput},
		{Name: actionPublish, Type: model.ActionTypeComputed},
	}, nil
}

func (Builder) Checks(action string) (registry.CheckSpec, bool) {
	switch action {
	case actionDetails:
		return registry.CheckSpec{Schema: detailsSchema(), Required: []string{"title"}}, true
	case actionSchedule:
		return registry.CheckSpec{Schema: scheduleSchema(), Required: []string{"starts_at"}}, true
	default:
		return registry.CheckSpec{}, false
	}
}

// Lifecycle publishes the event once the flow is consumed.
type Lifecycle struct {
	Events Publisher
	Logger *zap.Logger
}

func (Lifecycle) Name() string { return FlowCreate }

func (l Lifecycle) OnComplete(ctx context.Context, set model.ActionSet) error {
	details := set.Actions[0].Data
	schedule := set.Actions[1].Data

	title, _ := details["title"].(string)
	startsAt, _ := schedule["starts_at"].(string)
	capacity := 0
	switch n := details["capacity"].(type) {
	case float64:
		capacity = int(n)
	case int:
		capacity = n
	}

	ev := Event{
		ID:        set.ID,
		TenantID:  set.TenantID,
		Organizer: set.Owner,
		Title:     title,
		Capacity:  capacity,
		StartsAt:  startsAt,
	}
	if err := l.Events.Publish(ctx, ev); err != nil {
		return err
	}

	if l.Logger != nil {
		l.Logger.Info("event published",
			zap.String("event_id", ev.ID),
			zap.String("tenant_id", ev.TenantID),
			zap.String("organizer", ev.Organizer),
		)
	}
	return nil
}
