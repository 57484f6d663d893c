// Package seed writes a small demo dataset: one supplier catalog, a buyer
// address with matching shipping rates and an access token for the buyer.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pawmarket/internal/domain"
)

const (
	DemoBuyerID    = "demo-buyer"
	DemoSupplierID = "demo-supplier"
	DemoAddressID  = "demo-address"
	DemoRateID     = "cairo-standard"
)

type productWriter interface {
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}

type addressWriter interface {
	Create(ctx context.Context, a domain.Address) (*domain.Address, error)
}

type rateWriter interface {
	Upsert(ctx context.Context, rate domain.ShippingRate) error
}

type tokenIssuer interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
}

type Deps struct {
	Products  productWriter
	Addresses addressWriter
	Rates     rateWriter
	Tokens    tokenIssuer
	TokenTTL  time.Duration
}

// Result names what a seeded client needs to call the API.
type Result struct {
	BuyerID   string
	AddressID string
	RateID    string
	Token     string
}

var demoProducts = []domain.Product{
	{ID: "demo-kibble", SupplierID: DemoSupplierID, SKU: "DK-3", Name: "Chicken kibble 3kg", PriceCents: 32000, Quantity: 25},
	{ID: "demo-litter", SupplierID: DemoSupplierID, SKU: "DL-10", Name: "Clumping litter 10L", PriceCents: 18000, SalePriceCents: 15000, OnSale: true, Quantity: 40},
	{ID: "demo-leash", SupplierID: DemoSupplierID, SKU: "DLS-1", Name: "Reflective leash", PriceCents: 9500, Quantity: 3},
	{ID: "other-shampoo", SupplierID: "other-supplier", SKU: "OS-1", Name: "Oatmeal shampoo", PriceCents: 12000, Quantity: 10},
}

var demoRates = []domain.ShippingRate{
	{ID: DemoRateID, Zone: "cairo", Name: "Cairo standard", CostCents: 5000},
	{ID: "alexandria-standard", Zone: "alexandria", Name: "Alexandria standard", CostCents: 7000},
}

// Apply writes the demo dataset. Running it again refreshes the catalog and
// issues a new token.
func Apply(ctx context.Context, d Deps) (*Result, error) {
	for _, p := range demoProducts {
		if _, err := d.Products.Upsert(ctx, p); err != nil {
			return nil, fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	for _, r := range demoRates {
		if err := d.Rates.Upsert(ctx, r); err != nil {
			return nil, fmt.Errorf("upsert rate %s: %w", r.ID, err)
		}
	}

	_, err := d.Addresses.Create(ctx, domain.Address{
		ID:         DemoAddressID,
		OwnerID:    DemoBuyerID,
		FullName:   "Demo Buyer",
		StreetName: "9 Road 233",
		City:       "Cairo",
		Zone:       "cairo",
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("create address: %w", err)
	}

	ttl := d.TokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	token, err := d.Tokens.Issue(ctx, DemoBuyerID, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Result{BuyerID: DemoBuyerID, AddressID: DemoAddressID, RateID: DemoRateID, Token: token}, nil
}
