// Package catalog reads product catalogs from JSON files, optionally
// gzip-compressed, for seeding stores.
package catalog

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/scent-shop/internal/domain/product"
)

type entry struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
}

// Load reads the catalog at path. Files ending in .gz are decompressed.
func Load(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip catalog")
		}
		defer gz.Close()
		r = gz
	}

	products, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	return products, nil
}

// Decode parses a JSON array of catalog entries and validates each one.
func Decode(r io.Reader) ([]product.Product, error) {
	var entries []entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	seen := make(map[string]struct{}, len(entries))
	products := make([]product.Product, 0, len(entries))
	for i, e := range entries {
		switch {
		case e.ID == "":
			return nil, errors.Errorf("entry %d: missing id", i)
		case e.Name == "":
			return nil, errors.Errorf("product %s: missing name", e.ID)
		case e.Price.IsNegative():
			return nil, errors.Errorf("product %s: negative price", e.ID)
		case e.Stock < 0:
			return nil, errors.Errorf("product %s: negative stock", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, errors.Errorf("product %s: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}

		products = append(products, product.Product{
			ID:       e.ID,
			Name:     e.Name,
			Price:    e.Price,
			Stock:    e.Stock,
			Category: e.Category,
		})
	}
	return products, nil
}
