package shipping

import (
	"context"

	"pawmarket/internal/domain"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.ShippingRate, error)
	Upsert(ctx context.Context, rate domain.ShippingRate) error
}
