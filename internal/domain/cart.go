package domain

import "time"

type Cart struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	TotalCents int64      `json:"totalCents"`
	ItemCount  int        `json:"itemCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Items      []CartItem `json:"items,omitempty"`
}

// CartItem is keyed by product within its cart. UnitPriceCents is captured at
// mutation time and is not re-read from the catalog at checkout.
type CartItem struct {
	ProductID       string    `json:"productId"`
	SupplierID      string    `json:"supplierId"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unitPriceCents"`
	LastPriceSyncAt time.Time `json:"lastPriceSyncAt"`
}

// LineTotal is the contribution of the item to the cart total.
func (i CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// Totals sums quantity and line totals over items.
func Totals(items []CartItem) (totalCents int64, itemCount int) {
	for _, it := range items {
		totalCents += it.LineTotal()
		itemCount += it.Quantity
	}
	return totalCents, itemCount
}
