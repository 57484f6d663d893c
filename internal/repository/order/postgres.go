package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

const orderColumns = `
id::text, order_number, buyer_id, supplier_id, shipping_address_id, shipping_cost_cents,
subtotal_cents, discount_cents, total_price_cents, promo_code, status, payment_method, success,
COALESCE(gateway_intention_id, ''), COALESCE(gateway_order_id, ''), stock_reserved, stock_released,
paid_at, created_at, updated_at`

func (r *postgresRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	// A single-statement update under READ COMMITTED waits for concurrent
	// increments instead of failing them.
	var n int64
	err := r.pool.QueryRow(ctx, `
UPDATE order_counters SET value = value + 1 WHERE name = 'orders' RETURNING value
`).Scan(&n)
	if err != nil {
		r.logger.Error("order repo: next number", zap.Error(err))
		return 0, err
	}
	return n, nil
}

func (r *postgresRepo) Create(ctx context.Context, o domain.Order, lines []domain.OrderLine) (*domain.Order, error) {
	var out *domain.Order
	err := db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
INSERT INTO orders (id, order_number, buyer_id, supplier_id, shipping_address_id, shipping_cost_cents,
    subtotal_cents, discount_cents, total_price_cents, promo_code, status, payment_method, success, stock_reserved)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, TRUE)
ON CONFLICT (id) DO NOTHING
`, o.ID, o.OrderNumber, o.BuyerID, o.SupplierID, o.ShippingAddressID, o.ShippingCostCents,
			o.SubtotalCents, o.DiscountCents, o.TotalPriceCents, o.PromoCode, string(o.Status), string(o.PaymentMethod))
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			existing, err := getOrder(ctx, tx, o.ID)
			if err != nil {
				return err
			}
			out = existing
			return nil
		}

		for _, l := range lines {
			if _, err := tx.Exec(ctx, `
INSERT INTO order_lines (order_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (order_id, product_id) DO NOTHING
`, o.ID, l.ProductID, l.Quantity); err != nil {
				return err
			}
			if err := reserve(ctx, tx, l); err != nil {
				return err
			}
		}

		created, err := getOrder(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			r.logger.Error("order repo: create", zap.String("order_id", o.ID), zap.Error(err))
		}
		return nil, err
	}
	r.logger.Info("order repo: created", zap.String("order_id", out.ID), zap.Int64("order_number", out.OrderNumber))
	return out, nil
}

func reserve(ctx context.Context, tx pgx.Tx, l domain.OrderLine) error {
	cmd, err := tx.Exec(ctx, `
UPDATE products SET quantity = quantity - $2, updated_at = now()
WHERE id = $1 AND quantity >= $2
`, l.ProductID, l.Quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	var available int
	err = tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, l.ProductID).Scan(&available)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return &domain.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: available}
}

func releaseStock(ctx context.Context, tx pgx.Tx, orderID string) error {
	_, err := tx.Exec(ctx, `
UPDATE products p
SET quantity = p.quantity + l.quantity, updated_at = now()
FROM order_lines l
WHERE l.order_id = $1 AND l.product_id = p.id
`, orderID)
	return err
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	o, err := getOrder(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	lines, err := r.Lines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return o, nil
}

func (r *postgresRepo) Lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
SELECT order_id::text, product_id, quantity FROM order_lines WHERE order_id = $1 ORDER BY product_id
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *postgresRepo) FindByGatewayIntention(ctx context.Context, intentionID string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_intention_id = $1`, intentionID))
}

func (r *postgresRepo) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1 ORDER BY created_at DESC LIMIT 1
`, gatewayOrderID))
}

func (r *postgresRepo) SetGatewayRefs(ctx context.Context, orderID, intentionID, gatewayOrderID string) error {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET gateway_intention_id = NULLIF($2, ''), gateway_order_id = NULLIF($3, ''), updated_at = now()
WHERE id = $1
`, orderID, intentionID, gatewayOrderID)
	if err != nil {
		r.logger.Error("order repo: set gateway refs", zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	changed := false
	err := db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		changed = false
		var status string
		var released bool
		err := tx.QueryRow(ctx, `
SELECT status, stock_released FROM orders WHERE id = $1 FOR UPDATE
`, orderID).Scan(&status, &released)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		switch domain.OrderStatus(status) {
		case domain.StatusPaymentPending, domain.StatusPaymentFailed:
		default:
			return nil
		}
		if released {
			// Paid after an earlier failure gave the stock back; take it
			// again without going below zero.
			if _, err := tx.Exec(ctx, `
UPDATE products p
SET quantity = GREATEST(p.quantity - l.quantity, 0), updated_at = now()
FROM order_lines l
WHERE l.order_id = $1 AND l.product_id = p.id
`, orderID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
UPDATE orders
SET status = $2, success = TRUE, paid_at = $3, stock_released = FALSE, updated_at = now()
WHERE id = $1
`, orderID, string(domain.StatusPaid), paidAt); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *postgresRepo) MarkPaymentFailed(ctx context.Context, orderID string) (bool, error) {
	changed := false
	err := db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		changed = false
		var reserved, released bool
		err := tx.QueryRow(ctx, `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING stock_reserved, stock_released
`, orderID, string(domain.StatusPaymentFailed), string(domain.StatusPaymentPending)).Scan(&reserved, &released)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if reserved && !released {
			if err := releaseStock(ctx, tx, orderID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE orders SET stock_released = TRUE WHERE id = $1`, orderID); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !changed {
		if _, err := getOrder(ctx, r.pool, orderID); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func (r *postgresRepo) ListUnsuccessful(ctx context.Context, afterID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE success = FALSE
  AND id > COALESCE(NULLIF($1, '')::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
ORDER BY id
LIMIT $2
`, afterID, limit)
	if err != nil {
		r.logger.Error("order repo: list unsuccessful", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *postgresRepo) DeleteAbandoned(ctx context.Context, orderID string) (bool, error) {
	deleted := false
	err := db.RunInTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		deleted = false
		var status string
		var reserved, released bool
		err := tx.QueryRow(ctx, `
SELECT status, stock_reserved, stock_released FROM orders WHERE id = $1 FOR UPDATE
`, orderID).Scan(&status, &reserved, &released)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if domain.OrderStatus(status) == domain.StatusPaid {
			return nil
		}
		if reserved && !released {
			if err := releaseStock(ctx, tx, orderID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		r.logger.Error("order repo: delete abandoned", zap.String("order_id", orderID), zap.Error(err))
		return false, err
	}
	return deleted, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getOrder(ctx context.Context, q rowQuerier, id string) (*domain.Order, error) {
	return scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status, method string
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.BuyerID,
		&o.SupplierID,
		&o.ShippingAddressID,
		&o.ShippingCostCents,
		&o.SubtotalCents,
		&o.DiscountCents,
		&o.TotalPriceCents,
		&o.PromoCode,
		&status,
		&method,
		&o.Success,
		&o.GatewayIntentionID,
		&o.GatewayOrderID,
		&o.StockReserved,
		&o.StockReleased,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(method)
	return &o, nil
}
