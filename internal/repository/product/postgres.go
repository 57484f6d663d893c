package product

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

const selectColumns = `id, supplier_id, sku, name, price_cents, sale_price_cents, on_sale, quantity, currency, created_at`

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	q := `SELECT ` + selectColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("product repo: get not found", zap.String("id", id))
			return nil, domain.ErrNotFound
		}
		r.logger.Error("product repo: get", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT ` + selectColumns + ` FROM products WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		r.logger.Error("product repo: get many", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("product repo: get many", zap.Int("requested", len(ids)), zap.Int("found", len(out)))
	return out, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (id, supplier_id, sku, name, price_cents, sale_price_cents, on_sale, quantity, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'EGP'))
ON CONFLICT (id) DO UPDATE SET
    supplier_id = EXCLUDED.supplier_id,
    sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    price_cents = EXCLUDED.price_cents,
    sale_price_cents = EXCLUDED.sale_price_cents,
    on_sale = EXCLUDED.on_sale,
    quantity = EXCLUDED.quantity,
    currency = EXCLUDED.currency,
    updated_at = now()
RETURNING ` + selectColumns
	res, err := scanProduct(r.pool.QueryRow(ctx, q,
		p.ID,
		p.SupplierID,
		p.SKU,
		p.Name,
		p.PriceCents,
		p.SalePriceCents,
		p.OnSale,
		p.Quantity,
		p.Currency,
	))
	if err != nil {
		r.logger.Error("product repo: upsert", zap.String("id", p.ID), zap.String("supplier_id", p.SupplierID), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("product repo: upserted", zap.String("id", res.ID), zap.Int("quantity", res.Quantity))
	return &res, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SupplierID, &p.SKU, &p.Name, &p.PriceCents, &p.SalePriceCents, &p.OnSale, &p.Quantity, &p.Currency, &p.CreatedAt)
	return p, err
}
