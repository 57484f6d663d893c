package domain

import "time"

// Product is a catalog snapshot. The engine only reads it; stock is reserved
// and released by the order repository.
type Product struct {
	ID             string    `json:"id"`
	SupplierID     string    `json:"supplierId"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	PriceCents     int64     `json:"priceCents"`
	SalePriceCents int64     `json:"salePriceCents"`
	OnSale         bool      `json:"onSale"`
	Quantity       int       `json:"quantity"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"createdAt"`
}
