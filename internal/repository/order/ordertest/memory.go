// Package ordertest provides an in-memory order repository for tests.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"pawmarket/internal/domain"
	"pawmarket/internal/repository/product/producttest"
)

// Memory is an order.Repository kept in process memory. Stock is reserved
// and released against Catalog when it is set.
type Memory struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	lines   map[string][]domain.OrderLine
	counter int64

	Catalog *producttest.Memory
	// DeleteErr, when set, fails DeleteAbandoned.
	DeleteErr error
}

func New(catalog *producttest.Memory) *Memory {
	return &Memory{
		orders:  map[string]domain.Order{},
		lines:   map[string][]domain.OrderLine{},
		counter: 1000,
		Catalog: catalog,
	}
}

// Seed stores o and its lines as-is.
func (m *Memory) Seed(o domain.Order, lines ...domain.OrderLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	m.lines[o.ID] = append([]domain.OrderLine(nil), lines...)
}

// Exists reports whether an order with id is stored.
func (m *Memory) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.orders[id]
	return ok
}

func (m *Memory) NextOrderNumber(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return m.counter, nil
}

func (m *Memory) Create(_ context.Context, o domain.Order, lines []domain.OrderLine) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orders[o.ID]; ok {
		return &existing, nil
	}
	if m.Catalog != nil {
		for i, l := range lines {
			if !m.Catalog.AdjustStock(l.ProductID, -l.Quantity) {
				for _, done := range lines[:i] {
					m.Catalog.AdjustStock(done.ProductID, done.Quantity)
				}
				return nil, &domain.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: m.Catalog.Stock(l.ProductID)}
			}
		}
	}
	now := time.Now().UTC()
	o.Success = false
	o.StockReserved = true
	o.CreatedAt, o.UpdatedAt = now, now
	m.orders[o.ID] = o
	stored := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		l.OrderID = o.ID
		stored = append(stored, l)
	}
	m.lines[o.ID] = stored
	return &o, nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	o.Lines = append([]domain.OrderLine(nil), m.lines[id]...)
	return &o, nil
}

func (m *Memory) Lines(_ context.Context, orderID string) ([]domain.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderLine(nil), m.lines[orderID]...), nil
}

func (m *Memory) FindByGatewayIntention(_ context.Context, intentionID string) (*domain.Order, error) {
	return m.find(func(o domain.Order) bool { return o.GatewayIntentionID == intentionID })
}

func (m *Memory) FindByGatewayOrder(_ context.Context, gatewayOrderID string) (*domain.Order, error) {
	return m.find(func(o domain.Order) bool { return o.GatewayOrderID == gatewayOrderID })
}

func (m *Memory) find(match func(domain.Order) bool) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if match(o) {
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) SetGatewayRefs(_ context.Context, orderID, intentionID, gatewayOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.GatewayIntentionID = intentionID
	o.GatewayOrderID = gatewayOrderID
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return nil
}

func (m *Memory) MarkPaid(_ context.Context, orderID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status != domain.StatusPaymentPending && o.Status != domain.StatusPaymentFailed {
		return false, nil
	}
	if o.StockReleased && m.Catalog != nil {
		for _, l := range m.lines[orderID] {
			if !m.Catalog.AdjustStock(l.ProductID, -l.Quantity) {
				m.Catalog.AdjustStock(l.ProductID, -m.Catalog.Stock(l.ProductID))
			}
		}
	}
	o.Status = domain.StatusPaid
	o.Success = true
	o.StockReleased = false
	o.PaidAt = &paidAt
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return true, nil
}

func (m *Memory) MarkPaymentFailed(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status != domain.StatusPaymentPending {
		return false, nil
	}
	m.release(&o)
	o.Status = domain.StatusPaymentFailed
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return true, nil
}

func (m *Memory) ListUnsuccessful(_ context.Context, afterID string, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.orders))
	for id, o := range m.orders {
		if !o.Success && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.orders[id])
	}
	return out, nil
}

func (m *Memory) DeleteAbandoned(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.Status == domain.StatusPaid {
		return false, nil
	}
	m.release(&o)
	delete(m.orders, orderID)
	delete(m.lines, orderID)
	return true, nil
}

func (m *Memory) release(o *domain.Order) {
	if !o.StockReserved || o.StockReleased {
		return
	}
	if m.Catalog != nil {
		for _, l := range m.lines[o.ID] {
			m.Catalog.AdjustStock(l.ProductID, l.Quantity)
		}
	}
	o.StockReleased = true
}
