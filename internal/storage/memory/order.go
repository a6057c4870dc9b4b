package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xenking/scent-shop/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore keeps orders in memory. Returned orders are deep copies.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
	seq    []string
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

func cloneOrder(o *order.Order) order.Order {
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	return cp
}

// Create stores o. Order ids must be unique.
func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("creating order %q: duplicate id", o.ID)
	}
	cp := cloneOrder(o)
	s.orders[o.ID] = &cp
	s.seq = append(s.seq, o.ID)
	return nil
}

// GetByID returns the order with the given id.
func (s *OrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

// ListByUser returns the user's orders, newest first.
func (s *OrderStore) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.UserID == userID }), nil
}

// List returns all orders, newest first.
func (s *OrderStore) List(_ context.Context) ([]order.Order, error) {
	return s.list(func(*order.Order) bool { return true }), nil
}

func (s *OrderStore) list(keep func(*order.Order) bool) []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, 0)
	for i := len(s.seq) - 1; i >= 0; i-- {
		o := s.orders[s.seq[i]]
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

// UpdateStatus sets the status to `to` if it is still `from`.
func (s *OrderStore) UpdateStatus(_ context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != from {
		return nil, order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	cp := cloneOrder(o)
	return &cp, nil
}
