package cartstore

import (
	"github.com/ReploidGI0/storefront-cart/catalog"
	"github.com/shopspring/decimal"
)

// Quantity bounds for a single cart line.
const (
	MinItems = 1
	MaxItems = 5
)

// CartItem is a product in the cart together with how many units were picked.
// It serializes as the product's fields plus "quantity".
type CartItem struct {
	catalog.Product
	Quantity int `json:"quantity"`
}

// Subtotal is price × quantity for the line.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func cartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func indexOf(items []CartItem, id int64) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// withQuantity returns a copy of items where the line at idx is replaced by a
// record carrying quantity q. Other lines are copied unchanged.
func withQuantity(items []CartItem, idx, q int) []CartItem {
	next := make([]CartItem, len(items))
	copy(next, items)
	line := next[idx]
	line.Quantity = q
	next[idx] = line
	return next
}
