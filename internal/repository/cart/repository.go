package cart

import (
	"context"

	"pawmarket/internal/domain"
)

// Repository persists carts. Every mutation goes through WithTx so the cart
// row and the items it touches are read and written in one transaction.
type Repository interface {
	// GetByOwner returns the owner's cart with its items.
	GetByOwner(ctx context.Context, ownerID string) (*domain.Cart, error)
	// WithTx runs fn in a transaction, re-running it on write conflicts.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the cart store as seen from inside a transaction.
type Tx interface {
	// GetOrCreate returns the owner's cart, creating an empty one on first
	// use. The cart row stays locked until the transaction ends.
	GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error)
	// FindForUpdate locks and returns an existing cart, or domain.ErrNotFound.
	FindForUpdate(ctx context.Context, ownerID string) (*domain.Cart, error)
	Item(ctx context.Context, cartID, productID string) (*domain.CartItem, error)
	Items(ctx context.Context, cartID string) ([]domain.CartItem, error)
	// ActiveSupplier returns the supplier of the cart's items, or "" when
	// the cart is empty.
	ActiveSupplier(ctx context.Context, cartID string) (string, error)
	PutItem(ctx context.Context, cartID string, item domain.CartItem) error
	DeleteItem(ctx context.Context, cartID, productID string) error
	DeleteAllItems(ctx context.Context, cartID string) error
	SetTotals(ctx context.Context, cartID string, totalCents int64, itemCount int) error
}
