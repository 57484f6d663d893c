// Package carttest provides an in-memory cart repository for tests.
package carttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pawmarket/internal/domain"
	cartrepo "pawmarket/internal/repository/cart"
)

// Memory is a cart.Repository kept in process memory. WithTx applies fn to a
// copy of the state and swaps it in only when fn succeeds.
type Memory struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart // by owner
	items map[string]map[string]domain.CartItem

	// TxErr, when set, is returned by the next WithTx call instead of running fn.
	TxErr error
	// Txs counts committed transactions.
	Txs int
	// Writes counts item and totals writes across committed transactions.
	Writes int
}

func New() *Memory {
	return &Memory{
		carts: map[string]*domain.Cart{},
		items: map[string]map[string]domain.CartItem{},
	}
}

// Seed stores a cart for owner holding items, with aggregates computed from them.
func (m *Memory) Seed(ownerID string, items ...domain.CartItem) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c := &domain.Cart{ID: uuid.NewString(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	c.TotalCents, c.ItemCount = domain.Totals(items)
	m.carts[ownerID] = c
	m.items[c.ID] = map[string]domain.CartItem{}
	for _, it := range items {
		m.items[c.ID][it.ProductID] = it
	}
	return c
}

func (m *Memory) GetByOwner(_ context.Context, ownerID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	out.Items = sortedItems(m.items[c.ID])
	return &out, nil
}

func (m *Memory) WithTx(_ context.Context, fn func(cartrepo.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TxErr != nil {
		err := m.TxErr
		m.TxErr = nil
		return err
	}
	tx := &memTx{carts: map[string]*domain.Cart{}, items: map[string]map[string]domain.CartItem{}}
	for k, c := range m.carts {
		cp := *c
		tx.carts[k] = &cp
	}
	for k, set := range m.items {
		cp := make(map[string]domain.CartItem, len(set))
		for pid, it := range set {
			cp[pid] = it
		}
		tx.items[k] = cp
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.carts = tx.carts
	m.items = tx.items
	m.Txs++
	m.Writes += tx.writes
	return nil
}

type memTx struct {
	carts  map[string]*domain.Cart
	items  map[string]map[string]domain.CartItem
	writes int
}

func (t *memTx) GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if c, ok := t.carts[ownerID]; ok {
		out := *c
		return &out, nil
	}
	now := time.Now().UTC()
	c := &domain.Cart{ID: uuid.NewString(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	t.carts[ownerID] = c
	t.items[c.ID] = map[string]domain.CartItem{}
	out := *c
	return &out, nil
}

func (t *memTx) FindForUpdate(_ context.Context, ownerID string) (*domain.Cart, error) {
	c, ok := t.carts[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (t *memTx) Item(_ context.Context, cartID, productID string) (*domain.CartItem, error) {
	it, ok := t.items[cartID][productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (t *memTx) Items(_ context.Context, cartID string) ([]domain.CartItem, error) {
	return sortedItems(t.items[cartID]), nil
}

func (t *memTx) ActiveSupplier(_ context.Context, cartID string) (string, error) {
	items := sortedItems(t.items[cartID])
	if len(items) == 0 {
		return "", nil
	}
	return items[0].SupplierID, nil
}

func (t *memTx) PutItem(_ context.Context, cartID string, item domain.CartItem) error {
	if t.items[cartID] == nil {
		t.items[cartID] = map[string]domain.CartItem{}
	}
	t.items[cartID][item.ProductID] = item
	t.writes++
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, cartID, productID string) error {
	delete(t.items[cartID], productID)
	t.writes++
	return nil
}

func (t *memTx) DeleteAllItems(_ context.Context, cartID string) error {
	t.items[cartID] = map[string]domain.CartItem{}
	t.writes++
	return nil
}

func (t *memTx) SetTotals(_ context.Context, cartID string, totalCents int64, itemCount int) error {
	for _, c := range t.carts {
		if c.ID == cartID {
			c.TotalCents = totalCents
			c.ItemCount = itemCount
			c.UpdatedAt = time.Now().UTC()
			t.writes++
			return nil
		}
	}
	return domain.ErrNotFound
}

func sortedItems(set map[string]domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(set))
	for _, it := range set {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
