// Package restore puts the lines of a failed or abandoned order back into the
// buyer's cart.
package restore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
	"pawmarket/internal/pricing"
	cartrepo "pawmarket/internal/repository/cart"
)

var (
	// ErrUnresolvedRef is returned when the order or buyer reference is empty.
	ErrUnresolvedRef = errors.New("restore: unresolved reference")
	// ErrOrderPaid is returned when the order was paid before the cart was
	// written. Nothing is restored.
	ErrOrderPaid = errors.New("restore: order already paid")
)

type orderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Lines(ctx context.Context, orderID string) ([]domain.OrderLine, error)
}

type productRepo interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// Result describes the cart after a restore.
type Result struct {
	RestoredProducts   int      `json:"restoredProducts"`
	RestoredItemCount  int      `json:"restoredItemCount"`
	RestoredTotalCents int64    `json:"restoredTotalCents"`
	SkippedProducts    []string `json:"skippedProducts,omitempty"`
}

type Service struct {
	carts    cartrepo.Repository
	orders   orderReader
	products productRepo
	logger   *zap.Logger
	now      func() time.Time
}

func New(carts cartrepo.Repository, orders orderReader, products productRepo, logger *zap.Logger) *Service {
	return &Service{
		carts:    carts,
		orders:   orders,
		products: products,
		logger:   logging.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RestoreToCart merges the order's lines into the buyer's cart. Each line ends
// at max(cart quantity, ordered quantity), so running it again changes
// nothing. Unit prices come from the live catalog, falling back to the price
// already on the cart line; a line with neither is skipped. All writes and the
// recomputed aggregates commit together. The order's status is checked again
// once the cart row is locked, so a payment that lands mid-restore either
// aborts it with ErrOrderPaid or clears the cart afterwards.
func (s *Service) RestoreToCart(ctx context.Context, order, buyer domain.Ref) (Result, error) {
	if order.IsZero() || buyer.IsZero() {
		return Result{}, ErrUnresolvedRef
	}
	lines, err := s.orders.Lines(ctx, order.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load order lines: %w", err)
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	live, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("load products: %w", err)
	}

	var res Result
	err = s.carts.WithTx(ctx, func(tx cartrepo.Tx) error {
		res = Result{}
		c, err := tx.GetOrCreate(ctx, buyer.ID)
		if err != nil {
			return err
		}
		o, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if o.Success || o.Status == domain.StatusPaid {
			return ErrOrderPaid
		}
		current, err := tx.Items(ctx, c.ID)
		if err != nil {
			return err
		}
		existing := make(map[string]domain.CartItem, len(current))
		active := ""
		for _, it := range current {
			existing[it.ProductID] = it
			if active == "" {
				active = it.SupplierID
			}
		}

		now := s.now()
		for _, l := range lines {
			prev, had := existing[l.ProductID]
			p, found := live[l.ProductID]

			item := domain.CartItem{ProductID: l.ProductID, Quantity: max(prev.Quantity, l.Quantity)}
			switch {
			case found && pricing.ResolveUnitPrice(p) > 0:
				item.UnitPriceCents = pricing.ResolveUnitPrice(p)
				item.SupplierID = p.SupplierID
				item.LastPriceSyncAt = now
			case had && prev.UnitPriceCents > 0:
				item.UnitPriceCents = prev.UnitPriceCents
				item.SupplierID = prev.SupplierID
				item.LastPriceSyncAt = prev.LastPriceSyncAt
			default:
				res.SkippedProducts = append(res.SkippedProducts, l.ProductID)
				continue
			}
			if active != "" && item.SupplierID != active {
				return &domain.SupplierMismatchError{ActiveSupplierID: active, NewSupplierID: item.SupplierID}
			}
			if active == "" {
				active = item.SupplierID
			}

			res.RestoredProducts++
			if had && prev.Quantity == item.Quantity && prev.UnitPriceCents == item.UnitPriceCents {
				continue
			}
			if err := tx.PutItem(ctx, c.ID, item); err != nil {
				return err
			}
			existing[item.ProductID] = item
		}

		merged := make([]domain.CartItem, 0, len(existing))
		for _, it := range existing {
			merged = append(merged, it)
		}
		res.RestoredTotalCents, res.RestoredItemCount = domain.Totals(merged)
		if res.RestoredTotalCents == c.TotalCents && res.RestoredItemCount == c.ItemCount {
			return nil
		}
		return tx.SetTotals(ctx, c.ID, res.RestoredTotalCents, res.RestoredItemCount)
	})
	if err != nil {
		return Result{}, err
	}

	for _, id := range res.SkippedProducts {
		s.logger.Warn("restore: no usable price, line skipped",
			zap.String("order_id", order.ID), zap.String("buyer_id", buyer.ID), zap.String("product_id", id))
	}
	s.logger.Info("restore: order restored to cart",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyer.ID),
		zap.Int("products", res.RestoredProducts),
		zap.Int("item_count", res.RestoredItemCount),
		zap.Int64("total_cents", res.RestoredTotalCents),
	)
	return res, nil
}
