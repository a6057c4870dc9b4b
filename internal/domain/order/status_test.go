package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := to != StatusPending || from == StatusPending
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, Status("lost").CanTransition(StatusShipped))
	assert.False(t, StatusPending.CanTransition(Status("lost")))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("Shipped")
	var statusErr *InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "Shipped", statusErr.Status)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: nil, want: KindUnknown},
		{err: ErrEmptyOrder, want: KindValidation},
		{err: ErrMissingProduct, want: KindValidation},
		{err: &InvalidQuantityError{ProductID: "p"}, want: KindValidation},
		{err: &ProductNotFoundError{ProductID: "p"}, want: KindNotFound},
		{err: ErrNotFound, want: KindNotFound},
		{err: &InsufficientStockError{ProductID: "p"}, want: KindConflict},
		{err: ErrStatusConflict, want: KindConflict},
		{err: ErrForbidden, want: KindForbidden},
		{err: &PersistenceError{Op: "create order", Err: &InsufficientStockError{}}, want: KindPersistence},
		{err: &PersistenceError{Op: "reserve stock", Unconfirmed: []Reservation{{ProductID: "p", Quantity: 1}}}, want: KindPersistence},
		{err: assert.AnError, want: KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
