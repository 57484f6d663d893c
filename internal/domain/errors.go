package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique constraint was violated.
	ErrAlreadyExists = errors.New("already exists")
	// ErrTxConflict is returned once a transaction kept conflicting with
	// concurrent writers after every retry attempt. Callers may retry.
	ErrTxConflict = errors.New("transaction conflict")

	ErrNotSignedIn          = errors.New("not signed in")
	ErrInvalidProduct       = errors.New("invalid product")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrOutOfStock           = errors.New("out of stock")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidAddress       = errors.New("invalid shipping address")
	ErrInvalidShippingZone  = errors.New("shipping rate does not serve the address zone")
	ErrSupplierUnresolved   = errors.New("cart supplier could not be resolved")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidPromo         = errors.New("invalid promo code")
	ErrPromoUnavailable     = errors.New("promo service unavailable")
	ErrForbidden            = errors.New("forbidden")
	ErrFailedPrecondition   = errors.New("failed precondition")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// SupplierMismatchError is returned when a product from another supplier is
// added to a cart that already holds items.
type SupplierMismatchError struct {
	ActiveSupplierID string
	NewSupplierID    string
}

func (e *SupplierMismatchError) Error() string {
	return fmt.Sprintf("cart supplier mismatch: active=%s new=%s", e.ActiveSupplierID, e.NewSupplierID)
}

// InsufficientStockError reports the first line that could not be covered by
// available stock at checkout.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d available=%d", e.ProductID, e.Requested, e.Available)
}
