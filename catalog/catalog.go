// Package catalog provides the read-only list of products a storefront sells.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidCatalog is returned when catalog data breaks an id or price rule.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed data/products.json
var builtinProducts []byte

// Product is a purchasable item template.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Image       string          `json:"image,omitempty"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Source supplies the catalog. It is read once when a cart store is built.
type Source interface {
	Products(ctx context.Context) ([]Product, error)
}

// StaticSource serves the snapshot compiled into the binary.
type StaticSource struct{}

// NewStaticSource constructor
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// Products decodes the embedded snapshot.
func (s *StaticSource) Products(ctx context.Context) ([]Product, error) {
	return decode(builtinProducts)
}

// FileSource reads a JSON array of products from disk on every call.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Products reads and validates the catalog file.
func (f *FileSource) Products(ctx context.Context) ([]Product, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog file %s", f.path)
	}
	products, err := decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog file %s", f.path)
	}
	return products, nil
}

// Find returns the product with the given id.
func Find(products []Product, id int64) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func decode(data []byte) ([]Product, error) {
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog JSON")
	}
	if err := validate(products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func validate(products []Product) error {
	seen := make(map[int64]struct{}, len(products))
	for i, p := range products {
		if p.ID == 0 {
			return errors.Wrapf(ErrInvalidCatalog, "product at index %d has no id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Wrapf(ErrInvalidCatalog, "duplicate product id %d", p.ID)
		}
		if p.Price.IsNegative() {
			return errors.Wrapf(ErrInvalidCatalog, "product %d has a negative price", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
