package cart

import (
	"context"

	"go.uber.org/zap"

	"github.com/tixgate/actionset/model"
)

// CreateLifecycle materializes the cart record once a cart_create flow is
// consumed. The cart shares the flow's set ID, so replayed deliveries
// overwrite the same record and stay idempotent.
type CreateLifecycle struct {
	Carts  Store
	Logger *zap.Logger
}

func (CreateLifecycle) Name() string { return FlowCreate }

func (l CreateLifecycle) OnComplete(ctx context.Context, set model.ActionSet) error {
	details := set.Actions[0].Data

	name, _ := details["name"].(string)
	currency, _ := details["currency"].(string)

	cart := Cart{
		ID:       set.ID,
		TenantID: set.TenantID,
		Owner:    set.Owner,
		Name:     name,
		Currency: currency,
	}
	if err := l.Carts.Put(ctx, cart); err != nil {
		return err
	}

	if l.Logger != nil {
		l.Logger.Info("cart created",
			zap.String("cart_id", cart.ID),
			zap.String("tenant_id", cart.TenantID),
			zap.String("owner", cart.Owner),
		)
	}
	return nil
}

// CheckoutLifecycle marks the cart checked out and copies the captured order
// lines onto it. A replayed delivery finds the cart already checked out and
// returns without touching it.
type CheckoutLifecycle struct {
	Carts  Store
	Logger *zap.Logger
}

func (CheckoutLifecycle) Name() string { return FlowCheckout }

func (l CheckoutLifecycle) OnComplete(ctx context.Context, set model.ActionSet) error {
	cartID, _ := set.Meta["cart_id"].(string)
	cart, err := l.Carts.Get(ctx, set.TenantID, cartID)
	if err != nil {
		return err
	}
	if cart.CheckedOut {
		return nil
	}

	cart.Items = itemsFromAction(set.Actions[0].Data)
	cart.CheckedOut = true
	if err := l.Carts.Put(ctx, cart); err != nil {
		return err
	}

	if l.Logger != nil {
		l.Logger.Info("cart checked out",
			zap.String("cart_id", cart.ID),
			zap.String("tenant_id", cart.TenantID),
			zap.Int("items", len(cart.Items)),
		)
	}
	return nil
}

// itemsFromAction converts the validated order_items payload, which arrives
// in JSON value shapes, back into cart lines.
func itemsFromAction(data map[string]any) []Item {
	raw, _ := data["items"].([]any)
	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		line, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		sku, _ := line["sku"].(string)
		qty := 0
		switch n := line["qty"].(type) {
		case float64:
			qty = int(n)
		case int:
			qty = n
		}
		items = append(items, Item{SKU: sku, Qty: qty})
	}
	return items
}
