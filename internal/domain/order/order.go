package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed customer order. Lines are price snapshots taken at
// reservation time and never follow later catalog changes.
type Order struct {
	ID              string
	UserID          string
	Lines           []Line
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	TotalPrice      decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Line is a single ordered product with the unit price captured at order time.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns UnitPrice × Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LinesTotal sums the amounts of the given lines.
func LinesTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Address is a postal address attached to an order.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// Repository defines persistence operations for orders.
//
// Create must store the order and all of its lines atomically.
// UpdateStatus changes the status only if it still equals from, returning
// ErrStatusConflict otherwise.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Order, error)
}
