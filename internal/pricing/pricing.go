// Package pricing resolves the authoritative unit price of a product.
package pricing

import "pawmarket/internal/domain"

// ResolveUnitPrice returns the sale price when the product is on sale with a
// positive sale price, and the list price otherwise. Negative prices resolve
// to zero; callers that need a positive price must check for it.
func ResolveUnitPrice(p domain.Product) int64 {
	if p.OnSale && p.SalePriceCents > 0 {
		return p.SalePriceCents
	}
	if p.PriceCents < 0 {
		return 0
	}
	return p.PriceCents
}
