// Package cart implements the cart engine: every mutation re-reads the cart
// and the affected line inside one transaction and adjusts the cart
// aggregates by the line's change.
package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
	"pawmarket/internal/pricing"
	cartrepo "pawmarket/internal/repository/cart"
)

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type Service struct {
	repo     cartrepo.Repository
	products productRepo
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo cartrepo.Repository, products productRepo, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		logger:   logging.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the user's cart. A user who never shopped gets an empty cart
// that is not persisted.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrNotSignedIn
	}
	c, err := s.repo.GetByOwner(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Cart{OwnerID: userID}, nil
	}
	return c, err
}

// AddItem adds delta units of the product. The resulting quantity is capped
// at available stock; when the cap leaves the line unchanged nothing is
// written.
func (s *Service) AddItem(ctx context.Context, userID, productID string, delta int) (*domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrNotSignedIn
	}
	if delta <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	p, unitPrice, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Quantity <= 0 {
		return nil, domain.ErrOutOfStock
	}

	err = s.repo.WithTx(ctx, func(tx cartrepo.Tx) error {
		c, err := tx.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		prev, err := existingItem(ctx, tx, c.ID, p.ID)
		if err != nil {
			return err
		}
		if prev == nil {
			if err := checkSupplier(ctx, tx, c.ID, p.SupplierID); err != nil {
				return err
			}
		}
		newQty := capAdd(prevQuantity(prev), delta, p.Quantity)
		if prev != nil && newQty == prev.Quantity {
			s.logger.Debug("cart: add capped at stock", zap.String("user_id", userID), zap.String("product_id", p.ID), zap.Int("quantity", newQty))
			return nil
		}
		return s.writeLine(ctx, tx, c, prev, *p, newQty, unitPrice)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// SetQuantity sets the line to target units, clamped to [0, stock]. Zero
// removes the line.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, target int) (*domain.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrNotSignedIn
	}
	if target <= 0 {
		if err := s.removeLine(ctx, userID, productID); err != nil {
			return nil, err
		}
		return s.Get(ctx, userID)
	}

	p, unitPrice, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Quantity <= 0 {
		return nil, domain.ErrOutOfStock
	}
	newQty := min(target, p.Quantity)

	err = s.repo.WithTx(ctx, func(tx cartrepo.Tx) error {
		c, err := tx.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		prev, err := existingItem(ctx, tx, c.ID, p.ID)
		if err != nil {
			return err
		}
		if prev == nil {
			if err := checkSupplier(ctx, tx, c.ID, p.SupplierID); err != nil {
				return err
			}
		} else if prev.Quantity == newQty && prev.UnitPriceCents == unitPrice {
			return nil
		}
		return s.writeLine(ctx, tx, c, prev, *p, newQty, unitPrice)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes the line for productID.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	return s.SetQuantity(ctx, userID, productID, 0)
}

// ClearCart deletes every line and zeroes the aggregates. The cart row is
// kept for reuse.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrNotSignedIn
	}
	err := s.repo.WithTx(ctx, func(tx cartrepo.Tx) error {
		c, err := tx.FindForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAllItems(ctx, c.ID); err != nil {
			return err
		}
		return tx.SetTotals(ctx, c.ID, 0, 0)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("cart: clear", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	s.logger.Debug("cart: cleared", zap.String("user_id", userID))
	return nil
}

func (s *Service) removeLine(ctx context.Context, userID, productID string) error {
	productID = domain.ParseRef(domain.CollectionProducts, productID).ID
	if productID == "" {
		return domain.ErrInvalidProduct
	}
	err := s.repo.WithTx(ctx, func(tx cartrepo.Tx) error {
		c, err := tx.FindForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		prev, err := existingItem(ctx, tx, c.ID, productID)
		if err != nil || prev == nil {
			return err
		}
		if err := tx.DeleteItem(ctx, c.ID, productID); err != nil {
			return err
		}
		return tx.SetTotals(ctx, c.ID, c.TotalCents-prev.LineTotal(), c.ItemCount-prev.Quantity)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) writeLine(ctx context.Context, tx cartrepo.Tx, c *domain.Cart, prev *domain.CartItem, p domain.Product, qty int, unitPrice int64) error {
	item := domain.CartItem{
		ProductID:       p.ID,
		SupplierID:      p.SupplierID,
		Quantity:        qty,
		UnitPriceCents:  unitPrice,
		LastPriceSyncAt: s.now(),
	}
	if err := tx.PutItem(ctx, c.ID, item); err != nil {
		return err
	}
	total := c.TotalCents + item.LineTotal()
	count := c.ItemCount + item.Quantity
	if prev != nil {
		total -= prev.LineTotal()
		count -= prev.Quantity
	}
	return tx.SetTotals(ctx, c.ID, total, count)
}

func (s *Service) loadProduct(ctx context.Context, productID string) (*domain.Product, int64, error) {
	ref := domain.ParseRef(domain.CollectionProducts, productID)
	if ref.IsZero() {
		return nil, 0, domain.ErrInvalidProduct
	}
	p, err := s.products.GetByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, domain.ErrInvalidProduct
		}
		return nil, 0, err
	}
	unitPrice := pricing.ResolveUnitPrice(*p)
	if unitPrice <= 0 || p.SupplierID == "" {
		return nil, 0, domain.ErrInvalidProduct
	}
	return p, unitPrice, nil
}

func existingItem(ctx context.Context, tx cartrepo.Tx, cartID, productID string) (*domain.CartItem, error) {
	it, err := tx.Item(ctx, cartID, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return it, err
}

func checkSupplier(ctx context.Context, tx cartrepo.Tx, cartID, supplierID string) error {
	active, err := tx.ActiveSupplier(ctx, cartID)
	if err != nil {
		return err
	}
	if active != "" && active != supplierID {
		return &domain.SupplierMismatchError{ActiveSupplierID: active, NewSupplierID: supplierID}
	}
	return nil
}

// capAdd returns min(have+delta, limit) without overflowing on large deltas.
func capAdd(have, delta, limit int) int {
	if delta >= limit-have {
		return limit
	}
	return have + delta
}

func prevQuantity(it *domain.CartItem) int {
	if it == nil {
		return 0
	}
	return it.Quantity
}
