package cart

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/model"
)

// Action names within the cart flows.
const (
	actionCartDetails = "cart_details"
	actionOrderItems  = "order_items"
	actionPayment     = "payment"
	actionFulfillment = "fulfillment"
)

func cartDetailsSchema() *openapi3.Schema {
	currency := openapi3.NewStringSchema().WithMinLength(3).WithMaxLength(3)
	currency.Default = "EUR"

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"name":     openapi3.NewStringSchema().WithMinLength(1).NewRef(),
		"currency": currency.NewRef(),
	}
	return s
}

func orderItemsSchema() *openapi3.Schema {
	item := openapi3.NewObjectSchema()
	item.Properties = openapi3.Schemas{
		"sku": openapi3.NewStringSchema().WithMinLength(1).NewRef(),
		"qty": openapi3.NewIntegerSchema().WithMin(1).NewRef(),
	}
	item.Required = []string{"sku", "qty"}

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"items": openapi3.NewArraySchema().WithMinItems(1).WithItems(item).NewRef(),
	}
	return s
}

func paymentSchema() *openapi3.Schema {
	method := openapi3.NewStringSchema()
	method.Enum = []any{"card", "invoice", "wallet"}

	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{
		"method": method.NewRef(),
	}
	return s
}

// CreateBuilder serves the cart_create flow: a single input step capturing
// the cart details.
type CreateBuilder struct{}

func (CreateBuilder) Name() string { return FlowCreate }

func (CreateBuilder) Build(_ context.Context, _ model.RequestContext, _ map[string]any) ([]model.Action, error) {
	return []model.Action{
		{Name: actionCartDetails, Type: model.ActionTypeInput},
	}, nil
}

func (CreateBuilder) Checks(action string) (registry.CheckSpec, bool) {
	if action == actionCartDetails {
		return registry.CheckSpec{Schema: cartDetailsSchema(), Required: []string{"name"}}, true
	}
	return registry.CheckSpec{}, false
}

// CheckoutBuilder serves the cart_checkout flow: order capture, a deferred
// payment step settled by the payment service, and a computed fulfillment
// step.
type CheckoutBuilder struct {
	Carts Store
}

func (CheckoutBuilder) Name() string { return FlowCheckout }

// Build authorizes the creation arguments itself: checking out a cart the
// caller does not own is rejected without revealing whether the cart exists.
func (b CheckoutBuilder) Build(ctx context.Context, rctx model.RequestContext, args map[string]any) ([]model.Action, error) {
	cartID, _ := args["cart_id"].(string)
	if cartID == "" {
		return nil, model.NewBadRequestError("cart_id is required")
	}

	cart, err := b.Carts.Get(ctx, rctx.TenantID, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Owner != rctx.SubjectID {
		return nil, model.NewNotFoundError(fmt.Sprintf("cart %q not found", cartID))
	}
	if cart.CheckedOut {
		return nil, model.NewConflictError(fmt.Sprintf("cart %q is already checked out", cartID))
	}

	return []model.Action{
		{Name: actionOrderItems, Type: model.ActionTypeInput},
		{Name: actionPayment, Type: model.ActionTypeDeferred},
		{Name: actionFulfillment, Type: model.ActionTypeComputed},
	}, nil
}

func (CheckoutBuilder) Checks(action string) (registry.CheckSpec, bool) {
	switch action {
	case actionOrderItems:
		return registry.CheckSpec{Schema: orderItemsSchema(), Required: []string{"items"}}, true
	case actionPayment:
		return registry.CheckSpec{Schema: paymentSchema(), Required: []string{"method"}}, true
	default:
		return registry.CheckSpec{}, false
	}
}
