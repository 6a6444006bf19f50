package cart

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

type cartHarness struct {
	engine *actionset.Engine
	carts  *MemoryStore
}

func newCartHarness(t *testing.T) *cartHarness {
	t.Helper()

	cfg, err := rights.New(model.RightsConfig{
		"actionset": {
			"owner":  {Count: 1, CanEditRights: true, CountAs: []string{"editor"}},
			"editor": {CountAs: []string{"viewer"}},
			"viewer": {},
			"system": {},
		},
	})
	if err != nil {
		t.Fatalf("rights config error: %v", err)
	}
	rightsEngine := rights.NewEngine(cfg, rights.NewMemoryGrantStore(), nil)

	carts := NewMemoryStore()
	reg := registry.New()
	for _, err := range []error{
		reg.RegisterBuilder(CreateBuilder{}),
		reg.RegisterBuilder(CheckoutBuilder{Carts: carts}),
		reg.RegisterLifecycle(CreateLifecycle{Carts: carts}),
		reg.RegisterLifecycle(CheckoutLifecycle{Carts: carts}),
	} {
		if err != nil {
			t.Fatalf("registry error: %v", err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("registry validate error: %v", err)
	}

	queue := dispatch.NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = dispatch.NewWorker(queue, reg, nil, 3, 0).Run(ctx) }()

	engine := actionset.NewEngine(actionset.NewMemoryStore(), reg, rightsEngine, queue, actionset.Options{
		SystemPrincipals: []string{"svc-payments"},
	}, nil)
	return &cartHarness{engine: engine, carts: carts}
}

func waitForCart(t *testing.T, carts *MemoryStore, tenantID, id string, check func(Cart) bool) Cart {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		cart, err := carts.Get(context.Background(), tenantID, id)
		if err == nil && check(cart) {
			return cart
		}
		select {
		case <-deadline:
			t.Fatalf("cart %q never reached the expected state (last: %+v, err: %v)", id, cart, err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// One input action, one valid submit: the set completes, consumption flips,
// and the creation hook materializes the cart exactly once.
func TestCartCreate_endToEnd(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	owner := &model.RequestContext{SubjectID: "alice", TenantID: "t1"}

	set, err := h.engine.Create(ctx, owner, FlowCreate, nil)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(set.Actions) != 1 || set.Actions[0].Type != model.ActionTypeInput {
		t.Fatalf("actions = %+v", set.Actions)
	}

	got, err := h.engine.Update(ctx, owner, set.ID, nil, map[string]any{"name": "weekly shop"})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Actions[0].Status != model.ActionStatusDone {
		t.Errorf("action status = %q, want done", got.Actions[0].Status)
	}
	if !got.Consumed {
		t.Error("set should be consumed after the only action completes")
	}

	cart := waitForCart(t, h.carts, "t1", set.ID, func(c Cart) bool { return c.Name != "" })
	if cart.Owner != "alice" || cart.Name != "weekly shop" {
		t.Errorf("cart = %+v", cart)
	}
	if cart.Currency != "EUR" {
		t.Errorf("currency = %q, want schema default EUR", cart.Currency)
	}
}

func TestCartCreate_invalidSubmit(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	owner := &model.RequestContext{SubjectID: "alice", TenantID: "t1"}

	set, err := h.engine.Create(ctx, owner, FlowCreate, nil)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err = h.engine.Update(ctx, owner, set.ID, nil, map[string]any{"name": "x", "currency": "EURO"})
	if model.CodeOf(err) != model.ErrValidationError {
		t.Fatalf("Update(bad currency) = %v, want VALIDATION_ERROR", err)
	}
	_, err = h.engine.Update(ctx, owner, set.ID, nil, map[string]any{"currency": "EUR"})
	if model.CodeOf(err) != model.ErrIncomplete {
		t.Fatalf("Update(missing name) = %v, want INCOMPLETE", err)
	}
}

func TestCheckoutBuilder_authorizesArgs(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()

	if err := h.carts.Put(ctx, Cart{ID: "cart-1", TenantID: "t1", Owner: "alice", Name: "groceries"}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	// Someone else's cart: rejected without revealing it exists.
	mallory := &model.RequestContext{SubjectID: "mallory", TenantID: "t1"}
	_, err := h.engine.Create(ctx, mallory, FlowCheckout, map[string]any{"cart_id": "cart-1"})
	if model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("foreign checkout = %v, want NOT_FOUND", err)
	}

	owner := &model.RequestContext{SubjectID: "alice", TenantID: "t1"}
	if _, err := h.engine.Create(ctx, owner, FlowCheckout, map[string]any{"cart_id": "cart-1"}); err != nil {
		t.Fatalf("owner checkout error: %v", err)
	}

	_, err = h.engine.Create(ctx, owner, FlowCheckout, nil)
	if model.CodeOf(err) != model.ErrBadRequest {
		t.Fatalf("checkout without cart_id = %v, want BAD_REQUEST", err)
	}
}

func TestCartCheckout_endToEnd(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	owner := &model.RequestContext{SubjectID: "alice", TenantID: "t1"}
	system := &model.RequestContext{SubjectID: "svc-payments", TenantID: "t1"}

	if err := h.carts.Put(ctx, Cart{ID: "cart-1", TenantID: "t1", Owner: "alice", Name: "groceries"}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	set, err := h.engine.Create(ctx, owner, FlowCheckout, map[string]any{"cart_id": "cart-1"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := h.engine.Update(ctx, owner, set.ID, nil, map[string]any{
		"items": []any{
			map[string]any{"sku": "SKU-1", "qty": 2},
			map[string]any{"sku": "SKU-2", "qty": 1},
		},
	}); err != nil {
		t.Fatalf("Update(order_items) error: %v", err)
	}

	got, err := h.engine.Update(ctx, owner, set.ID, nil, map[string]any{"method": "card"})
	if err != nil {
		t.Fatalf("Update(payment) error: %v", err)
	}
	if got.Actions[1].Status != model.ActionStatusWaiting {
		t.Fatalf("payment status = %q, want waiting", got.Actions[1].Status)
	}

	if _, err := h.engine.Confirm(ctx, system, set.ID, 1, map[string]any{"settlement_ref": "stl-9"}); err != nil {
		t.Fatalf("Confirm(payment) error: %v", err)
	}
	got, err = h.engine.Confirm(ctx, system, set.ID, 2, nil)
	if err != nil {
		t.Fatalf("Confirm(fulfillment) error: %v", err)
	}
	if !got.Consumed {
		t.Fatal("set should be consumed")
	}

	cart := waitForCart(t, h.carts, "t1", "cart-1", func(c Cart) bool { return c.CheckedOut })
	if len(cart.Items) != 2 || cart.Items[0].SKU != "SKU-1" || cart.Items[0].Qty != 2 {
		t.Errorf("cart items = %+v", cart.Items)
	}
}

// A redelivered completion finds the cart already checked out and leaves it
// alone.
func TestCheckoutLifecycle_idempotent(t *testing.T) {
	carts := NewMemoryStore()
	ctx := context.Background()

	if err := carts.Put(ctx, Cart{ID: "cart-1", TenantID: "t1", Owner: "alice"}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	set := model.ActionSet{
		ID:       "as-1",
		Name:     FlowCheckout,
		TenantID: "t1",
		Owner:    "alice",
		Meta:     map[string]any{"cart_id": "cart-1"},
		Consumed: true,
		Actions: []model.Action{
			{Name: "order_items", Status: model.ActionStatusDone,
				Data: map[string]any{"items": []any{map[string]any{"sku": "SKU-1", "qty": float64(3)}}}},
			{Name: "payment", Status: model.ActionStatusDone},
			{Name: "fulfillment", Status: model.ActionStatusDone},
		},
	}

	lc := CheckoutLifecycle{Carts: carts}
	for i := 0; i < 3; i++ {
		if err := lc.OnComplete(ctx, set); err != nil {
			t.Fatalf("OnComplete replay %d error: %v", i, err)
		}
	}

	cart, err := carts.Get(ctx, "t1", "cart-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !cart.CheckedOut || len(cart.Items) != 1 || cart.Items[0].Qty != 3 {
		t.Errorf("cart = %+v", cart)
	}
}
