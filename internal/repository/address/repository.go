package address

import (
	"context"

	"pawmarket/internal/domain"
)

// Repository persists and fetches buyer addresses.
type Repository interface {
	Create(ctx context.Context, a domain.Address) (*domain.Address, error)
	GetByID(ctx context.Context, id string) (*domain.Address, error)
}
