// Package producttest provides an in-memory catalog for tests.
package producttest

import (
	"context"
	"sync"

	"pawmarket/internal/domain"
)

// Memory is a product.Repository backed by a map.
type Memory struct {
	mu       sync.Mutex
	products map[string]domain.Product
	// Err, when set, is returned by every read.
	Err error
}

func New(products ...domain.Product) *Memory {
	m := &Memory{products: map[string]domain.Product{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put replaces or adds p.
func (m *Memory) Put(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// Delete removes the product with id.
func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

// Stock returns the current quantity of id.
func (m *Memory) Stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Quantity
}

// AdjustStock adds delta to the quantity of id. It reports false when the
// product is missing or the result would be negative.
func (m *Memory) AdjustStock(id string, delta int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Quantity+delta < 0 {
		return false
	}
	p.Quantity += delta
	m.products[id] = p
	return true
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if p.Currency == "" {
		p.Currency = "EGP"
	}
	m.products[p.ID] = p
	return &p, nil
}
