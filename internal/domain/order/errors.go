package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Validation errors. Returned before any store is touched.
var (
	ErrEmptyOrder            = errors.New("no order items")
	ErrMissingUser           = errors.New("order owner is required")
	ErrMissingProduct        = errors.New("product is required for every order item")
	ErrPaymentMethodRequired = errors.New("payment method is required")
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the caller may not access an order.
	ErrForbidden = errors.New("not authorized to access this order")
	// ErrStatusConflict is returned when the order status changed concurrently.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity > MaxQuantity {
		return fmt.Sprintf("quantity must not exceed %d for product %s", MaxQuantity, e.ProductID)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

// InsufficientStockError indicates a product could not cover the requested
// quantity. Available is the last observed stock, or -1 when the shortfall was
// detected by a failed conditional decrement.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %s: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidStatusError indicates an unknown status or a forbidden transition.
type InvalidStatusError struct {
	Status string
	From   Status
}

func (e *InvalidStatusError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.Status)
	}
	return fmt.Sprintf("invalid order status %q", e.Status)
}

// Reservation is stock claimed for one line of an order in flight.
type Reservation struct {
	ProductID string
	Quantity  int
}

// PersistenceError reports a store failure during placement. Any stock that
// was reserved has been released, except for the reservations in Unrestored
// (release failed) and Unconfirmed (the decrement failed with an unknown
// outcome). Both need manual reconciliation.
type PersistenceError struct {
	Op          string
	Err         error
	Unrestored  []Reservation
	Unconfirmed []Reservation
}

func (e *PersistenceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.NeedsReconciliation() {
		b.WriteString(" (reconciliation required:")
		for _, r := range e.Unrestored {
			fmt.Fprintf(&b, " %s x%d", r.ProductID, r.Quantity)
		}
		for _, r := range e.Unconfirmed {
			fmt.Fprintf(&b, " %s x%d unconfirmed", r.ProductID, r.Quantity)
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NeedsReconciliation reports whether some stock may be claimed without an order.
func (e *PersistenceError) NeedsReconciliation() bool {
	return len(e.Unrestored) > 0 || len(e.Unconfirmed) > 0
}

// Kind classifies an error for callers that only need to know how to react.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A PersistenceError wins over whatever it wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		persistErr *PersistenceError
		qtyErr     *InvalidQuantityError
		statusErr  *InvalidStatusError
		notFound   *ProductNotFoundError
		stockErr   *InsufficientStockError
	)
	switch {
	case errors.As(err, &persistErr):
		return KindPersistence
	case errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrMissingUser),
		errors.Is(err, ErrMissingProduct),
		errors.Is(err, ErrPaymentMethodRequired),
		errors.As(err, &qtyErr),
		errors.As(err, &statusErr):
		return KindValidation
	case errors.As(err, &notFound), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &stockErr), errors.Is(err, ErrStatusConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindUnknown
	}
}
