//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xenking/scent-shop/internal/domain/product"
	"github.com/xenking/scent-shop/internal/storage/postgres"
)

func TestDecrementStock_ShortageAndMissingProduct(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewProductRepository(db)

	const id = "decrement-check"
	err := repo.Upsert(ctx, product.Product{
		ID:       id,
		Name:     "Decrement Check",
		Price:    decimal.RequireFromString("12.50"),
		Stock:    2,
		Category: "test",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec(context.Background(), `DELETE FROM products WHERE id = $1`, id)
	})

	price, ok, err := repo.DecrementStock(ctx, id, 2)
	if err != nil || !ok {
		t.Fatalf("decrement: ok=%v err=%v", ok, err)
	}
	if !price.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected price 12.50, got %s", price)
	}

	_, ok, err = repo.DecrementStock(ctx, id, 1)
	if err != nil || ok {
		t.Fatalf("expected shortage without error, got ok=%v err=%v", ok, err)
	}
	if got := stockOf(t, id); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	_, ok, err = repo.DecrementStock(ctx, "no-such-product", 1)
	if !errors.Is(err, product.ErrNotFound) || ok {
		t.Fatalf("expected product.ErrNotFound, got ok=%v err=%v", ok, err)
	}
}
