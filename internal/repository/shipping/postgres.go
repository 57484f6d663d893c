package shipping

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pawmarket/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.ShippingRate, error) {
	var rate domain.ShippingRate
	err := r.pool.QueryRow(ctx, `
SELECT id, zone, name, cost_cents FROM shipping_rates WHERE id = $1
`, id).Scan(&rate.ID, &rate.Zone, &rate.Name, &rate.CostCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rate, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, rate domain.ShippingRate) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO shipping_rates (id, zone, name, cost_cents) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET zone = EXCLUDED.zone, name = EXCLUDED.name, cost_cents = EXCLUDED.cost_cents
`, rate.ID, strings.ToLower(strings.TrimSpace(rate.Zone)), rate.Name, rate.CostCents)
	return err
}
