package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item with its authoritative price and available stock.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Category  string
	UpdatedAt time.Time
}

// Repository is the stock-aware view of the catalog used by order placement.
//
// DecrementStock must check and subtract in one atomic step per product: it
// succeeds (ok == true) only if stock >= qty at the moment of the decrement,
// and returns the price read in that same step. ok == false with a nil error
// means the condition failed and nothing was changed.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	DecrementStock(ctx context.Context, id string, qty int) (price decimal.Decimal, ok bool, err error)
	RestoreStock(ctx context.Context, id string, qty int) error
}

// Catalog extends Repository with the write path used by seeding and admin tooling.
type Catalog interface {
	Repository
	Upsert(ctx context.Context, p Product) error
	List(ctx context.Context) ([]Product, error)
}
