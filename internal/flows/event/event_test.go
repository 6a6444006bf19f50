package event

import (
	"context"
	"testing"
	"time"

	"github.com/tixgate/actionset/internal/actionset"
	"github.com/tixgate/actionset/internal/dispatch"
	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/internal/rights"
	"github.com/tixgate/actionset/model"
)

func newEventHarness(t *testing.T) (*actionset.Engine, *MemoryPublisher) {
	t.Helper()

	cfg, err := rights.New(model.RightsConfig{
		"actionset": {
			"owner":  {Count: 1, CanEditRights: true, CountAs: []string{"editor"}},
			"editor": {},
			"system": {},
		},
	})
	if err != nil {
		t.Fatalf("rights config error: %v", err)
	}
	rightsEngine := rights.NewEngine(cfg, rights.NewMemoryGrantStore(), nil)

	events := NewMemoryPublisher()
	reg := registry.New()
	if err := reg.RegisterBuilder(Builder{}); err != nil {
		t.Fatalf("register builder: %v", err)
	}
	if err := reg.RegisterLifecycle(Lifecycle{Events: events}); err != nil {
		t.Fatalf("register lifecycle: %v", err)
	}

	queue := dispatch.NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatch.NewWorker(queue, reg, nil, 3, 0).Run(ctx) }()

	engine := actionset.NewEngine(actionset.NewMemoryStore(), reg, rightsEngine, queue, actionset.Options{
		SystemPrincipals: []string{"svc-events"},
	}, nil)
	return engine, events
}

func TestEventCreate_endToEnd(t *testing.T) {
	engine, events := newEventHarness(t)
	ctx := context.Background()
	organizer := &model.RequestContext{SubjectID: "carol", TenantID: "t1"}
	system := &model.RequestContext{SubjectID: "svc-events", TenantID: "t1"}

	set, err := engine.Create(ctx, organizer, FlowCreate, nil)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := engine.Update(ctx, organizer, set.ID, nil, map[string]any{"title": "GopherCon"}); err != nil {
		t.Fatalf("Update(details) error: %v", err)
	}
	if _, err := engine.Update(ctx, organizer, set.ID, nil, map[string]any{"starts_at": "2026-10-01T09:00:00Z"}); err != nil {
		t.Fatalf("Update(schedule) error: %v", err)
	}

	got, err := engine.Confirm(ctx, system, set.ID, 2, nil)
	if err != nil {
		t.Fatalf("Confirm(publish) error: %v", err)
	}
	if !got.Consumed {
		t.Fatal("set should be consumed")
	}

	deadline := time.After(2 * time.Second)
	for {
		if ev, ok := events.Get(set.ID); ok {
			if ev.Title != "GopherCon" || ev.Organizer != "carol" {
				t.Errorf("event = %+v", ev)
			}
			if ev.Capacity != 100 {
				t.Errorf("capacity = %d, want schema default 100", ev.Capacity)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("event was never published")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if events.Len() != 1 {
		t.Errorf("published events = %d, want 1", events.Len())
	}
}

func TestEventLifecycle_idempotent(t *testing.T) {
	events := NewMemoryPublisher()
	lc := Lifecycle{Events: events}

	set := model.ActionSet{
		ID: "as-1", TenantID: "t1", Owner: "carol", Name: FlowCreate, Consumed: true,
		Actions: []model.Action{
			{Name: "event_details", Status: model.ActionStatusDone,
				Data: map[string]any{"title": "Meetup", "capacity": float64(40)}},
			{Name: "schedule", Status: model.ActionStatusDone,
				Data: map[string]any{"starts_at": "2026-09-01T18:00:00Z"}},
			{Name: "publish", Status: model.ActionStatusDone},
		},
	}

	for i := 0; i < 3; i++ {
		if err := lc.OnComplete(context.Background(), set); err != nil {
			t.Fatalf("OnComplete replay %d error: %v", i, err)
		}
	}
	if events.Len() != 1 {
		t.Fatalf("published events = %d, want 1", events.Len())
	}
}
