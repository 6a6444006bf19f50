// Package cart wires the shopping cart workflows into the engine: a creation
// flow that materializes a cart record and a checkout flow that walks order
// capture, payment, and fulfillment.
package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/tixgate/actionset/model"
)

// Flow names served by this package.
const (
	FlowCreate   = "cart_create"
	FlowCheckout = "cart_checkout"
)

// Cart is the stored cart record. The cart created by a cart_create flow
// shares the flow's set ID.
type Cart struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	Items      []Item `json:"items,omitempty"`
	CheckedOut bool   `json:"checked_out"`
}

// Item is one cart line.
type Item struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Store persists cart records.
type Store interface {
	Get(ctx context.Context, tenantID, id string) (Cart, error)
	Put(ctx context.Context, cart Cart) error
}

// MemoryStore is an in-memory cart Store.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

// NewMemoryStore creates an empty in-memory cart store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]Cart)}
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[tenantID+"|"+id]
	if !ok {
		return Cart{}, model.NewNotFoundError(fmt.Sprintf("cart %q not found", id))
	}
	return cart, nil
}

func (s *MemoryStore) Put(_ context.Context, cart Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.TenantID+"|"+cart.ID] = cart
	return nil
}
