// Package memory holds in-process implementations of the product and order
// repositories for local runs and tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/scent-shop/internal/domain/product"
)

var _ product.Catalog = (*ProductStore)(nil)

// ProductStore keeps products in memory. Each product has its own lock, held
// only for that product's check-and-decrement, so orders over disjoint
// products never contend.
type ProductStore struct {
	mu    sync.RWMutex
	slots map[string]*productSlot
	now   func() time.Time
}

type productSlot struct {
	mu sync.Mutex
	p  product.Product
}

// NewProductStore returns a store seeded with products.
func NewProductStore(products ...product.Product) *ProductStore {
	s := &ProductStore{
		slots: make(map[string]*productSlot, len(products)),
		now:   time.Now,
	}
	for _, p := range products {
		s.slots[p.ID] = &productSlot{p: p}
	}
	return s
}

func (s *ProductStore) slot(id string) (*productSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, ok
}

func (sl *productSlot) snapshot() product.Product {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.p
}

// GetByID returns a copy of the product.
func (s *ProductStore) GetByID(_ context.Context, id string) (*product.Product, error) {
	sl, ok := s.slot(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	p := sl.snapshot()
	return &p, nil
}

// GetByIDs returns copies of the products that exist among ids.
func (s *ProductStore) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if sl, ok := s.slot(id); ok {
			out = append(out, sl.snapshot())
		}
	}
	return out, nil
}

// List returns all products ordered by id.
func (s *ProductStore) List(_ context.Context) ([]product.Product, error) {
	s.mu.RLock()
	slots := make([]*productSlot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]product.Product, 0, len(slots))
	for _, sl := range slots {
		out = append(out, sl.snapshot())
	}
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// DecrementStock subtracts qty if at least qty units are in stock.
func (s *ProductStore) DecrementStock(_ context.Context, id string, qty int) (decimal.Decimal, bool, error) {
	sl, ok := s.slot(id)
	if !ok {
		return decimal.Zero, false, product.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if qty <= 0 || sl.p.Stock < qty {
		return decimal.Zero, false, nil
	}
	sl.p.Stock -= qty
	sl.p.UpdatedAt = s.now()
	return sl.p.Price, true, nil
}

// RestoreStock adds qty back to the product.
func (s *ProductStore) RestoreStock(_ context.Context, id string, qty int) error {
	sl, ok := s.slot(id)
	if !ok {
		return product.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.p.Stock += qty
	sl.p.UpdatedAt = s.now()
	return nil
}

// Upsert inserts p or replaces the stored product with the same id.
func (s *ProductStore) Upsert(_ context.Context, p product.Product) error {
	p.UpdatedAt = s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[p.ID]; ok {
		sl.mu.Lock()
		sl.p = p
		sl.mu.Unlock()
		return nil
	}
	s.slots[p.ID] = &productSlot{p: p}
	return nil
}
