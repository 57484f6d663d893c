package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pawmarket/internal/db"
	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type postgresRepo struct {
	pool        *pgxpool.Pool
	maxAttempts int
	logger      *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, maxAttempts int, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, maxAttempts: maxAttempts, logger: logging.OrNop(logger)}
}

// GetByOwner reads the cart row and its items from one snapshot so the
// aggregates always describe the returned lines.
func (r *postgresRepo) GetByOwner(ctx context.Context, ownerID string) (*domain.Cart, error) {
	const q = `
SELECT id::text, owner_id, total_cents, item_count, created_at, updated_at
FROM carts
WHERE owner_id = $1
`
	var cart *domain.Cart
	err := db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		c, err := scanCart(tx.QueryRow(ctx, q, ownerID))
		if err != nil {
			return err
		}
		items, err := listItems(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		c.Items = items
		cart = c
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Error("cart repo: get", zap.String("owner_id", ownerID), zap.Error(err))
		}
		return nil, err
	}
	return cart, nil
}

func (r *postgresRepo) WithTx(ctx context.Context, fn func(Tx) error) error {
	return db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if _, err := t.tx.Exec(ctx, `
INSERT INTO carts (owner_id) VALUES ($1)
ON CONFLICT (owner_id) DO NOTHING
`, ownerID); err != nil {
		return nil, err
	}
	return t.FindForUpdate(ctx, ownerID)
}

func (t *pgTx) FindForUpdate(ctx context.Context, ownerID string) (*domain.Cart, error) {
	const q = `
SELECT id::text, owner_id, total_cents, item_count, created_at, updated_at
FROM carts
WHERE owner_id = $1
FOR UPDATE
`
	return scanCart(t.tx.QueryRow(ctx, q, ownerID))
}

func (t *pgTx) Item(ctx context.Context, cartID, productID string) (*domain.CartItem, error) {
	const q = `
SELECT product_id, supplier_id, quantity, unit_price_cents, last_price_sync_at
FROM cart_items
WHERE cart_id = $1 AND product_id = $2
`
	var it domain.CartItem
	err := t.tx.QueryRow(ctx, q, cartID, productID).Scan(&it.ProductID, &it.SupplierID, &it.Quantity, &it.UnitPriceCents, &it.LastPriceSyncAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (t *pgTx) Items(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	return listItems(ctx, t.tx, cartID)
}

func (t *pgTx) ActiveSupplier(ctx context.Context, cartID string) (string, error) {
	var supplierID string
	err := t.tx.QueryRow(ctx, `
SELECT supplier_id FROM cart_items WHERE cart_id = $1 ORDER BY product_id LIMIT 1
`, cartID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return supplierID, nil
}

func (t *pgTx) PutItem(ctx context.Context, cartID string, item domain.CartItem) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO cart_items (cart_id, product_id, supplier_id, quantity, unit_price_cents, last_price_sync_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cart_id, product_id) DO UPDATE SET
    supplier_id = EXCLUDED.supplier_id,
    quantity = EXCLUDED.quantity,
    unit_price_cents = EXCLUDED.unit_price_cents,
    last_price_sync_at = EXCLUDED.last_price_sync_at
`, cartID, item.ProductID, item.SupplierID, item.Quantity, item.UnitPriceCents, item.LastPriceSyncAt)
	return err
}

func (t *pgTx) DeleteItem(ctx context.Context, cartID, productID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	return err
}

func (t *pgTx) DeleteAllItems(ctx context.Context, cartID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}

func (t *pgTx) SetTotals(ctx context.Context, cartID string, totalCents int64, itemCount int) error {
	cmd, err := t.tx.Exec(ctx, `
UPDATE carts
SET total_cents = $2, item_count = $3, updated_at = now()
WHERE id = $1
`, cartID, totalCents, itemCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, cartID string) ([]domain.CartItem, error) {
	rows, err := q.Query(ctx, `
SELECT product_id, supplier_id, quantity, unit_price_cents, last_price_sync_at
FROM cart_items
WHERE cart_id = $1
ORDER BY product_id
`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.SupplierID, &it.Quantity, &it.UnitPriceCents, &it.LastPriceSyncAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var c domain.Cart
	if err := row.Scan(&c.ID, &c.OwnerID, &c.TotalCents, &c.ItemCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
