package product

import (
	"context"

	"pawmarket/internal/domain"
)

// Repository reads catalog snapshots. Upsert is only used by the seed and
// import tools.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// GetMany returns the products found among ids, keyed by id. Missing ids
	// are absent from the map.
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}
