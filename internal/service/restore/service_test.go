package restore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawmarket/internal/domain"
	"pawmarket/internal/repository/cart/carttest"
	"pawmarket/internal/repository/order/ordertest"
	"pawmarket/internal/repository/product/producttest"
)

type fixture struct {
	svc     *Service
	carts   *carttest.Memory
	orders  *ordertest.Memory
	catalog *producttest.Memory
}

func newFixture(products ...domain.Product) fixture {
	catalog := producttest.New(products...)
	carts := carttest.New()
	orders := ordertest.New(catalog)
	return fixture{
		svc:     New(carts, orders, catalog, nil),
		carts:   carts,
		orders:  orders,
		catalog: catalog,
	}
}

func refs(orderID, buyerID string) (domain.Ref, domain.Ref) {
	return domain.NewRef(domain.CollectionOrders, orderID), domain.NewRef(domain.CollectionUsers, buyerID)
}

var (
	p1 = domain.Product{ID: "p1", SupplierID: "x", PriceCents: 100, Quantity: 10}
	p2 = domain.Product{ID: "p2", SupplierID: "x", PriceCents: 250, Quantity: 10}
)

func TestRestoreToCart_EmptyCart(t *testing.T) {
	f := newFixture(p1, p2)
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1"},
		domain.OrderLine{ProductID: "p1", Quantity: 3},
		domain.OrderLine{ProductID: "p2", Quantity: 1},
	)

	res, err := f.svc.RestoreToCart(context.Background(), domain.NewRef(domain.CollectionOrders, "o1"), domain.NewRef(domain.CollectionUsers, "u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestoredProducts)
	assert.Equal(t, 4, res.RestoredItemCount)
	assert.Equal(t, int64(3*100+250), res.RestoredTotalCents)

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, c.ItemCount)
	assert.Equal(t, int64(550), c.TotalCents)
}

func TestRestoreToCart_MaxMergeIsIdempotent(t *testing.T) {
	f := newFixture(p1, p2)
	f.carts.Seed("u1",
		domain.CartItem{ProductID: "p1", SupplierID: "x", Quantity: 5, UnitPriceCents: 100},
		domain.CartItem{ProductID: "p2", SupplierID: "x", Quantity: 1, UnitPriceCents: 250},
	)
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1"},
		domain.OrderLine{ProductID: "p1", Quantity: 3},
		domain.OrderLine{ProductID: "p2", Quantity: 2},
	)
	orderRef, buyerRef := refs("o1", "u1")

	first, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	require.NoError(t, err)
	assert.Equal(t, 7, first.RestoredItemCount, "max(5,3) + max(1,2)")

	writes := f.carts.Writes
	second, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, writes, f.carts.Writes, "second restore writes nothing")
}

func TestRestoreToCart_PriceFallback(t *testing.T) {
	f := newFixture(domain.Product{ID: "p1", SupplierID: "x", Quantity: 4})
	f.carts.Seed("u1", domain.CartItem{ProductID: "p1", SupplierID: "x", Quantity: 1, UnitPriceCents: 90})
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1"},
		domain.OrderLine{ProductID: "p1", Quantity: 2},
		domain.OrderLine{ProductID: "gone", Quantity: 1},
	)
	orderRef, buyerRef := refs("o1", "u1")

	res, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RestoredProducts)
	assert.Equal(t, []string{"gone"}, res.SkippedProducts)
	assert.Equal(t, int64(180), res.RestoredTotalCents, "zero live price falls back to cart price")
}

func TestRestoreToCart_UsesLiveSalePrice(t *testing.T) {
	f := newFixture(domain.Product{ID: "p1", SupplierID: "x", PriceCents: 100, SalePriceCents: 80, OnSale: true, Quantity: 4})
	f.carts.Seed("u1", domain.CartItem{ProductID: "p1", SupplierID: "x", Quantity: 2, UnitPriceCents: 100})
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1"}, domain.OrderLine{ProductID: "p1", Quantity: 1})
	orderRef, buyerRef := refs("o1", "u1")

	res, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	require.NoError(t, err)
	assert.Equal(t, int64(160), res.RestoredTotalCents)
}

func TestRestoreToCart_SupplierConflict(t *testing.T) {
	other := domain.Product{ID: "q1", SupplierID: "y", PriceCents: 500, Quantity: 3}
	f := newFixture(p1, other)
	f.carts.Seed("u1", domain.CartItem{ProductID: "q1", SupplierID: "y", Quantity: 1, UnitPriceCents: 500})
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1"}, domain.OrderLine{ProductID: "p1", Quantity: 2})
	orderRef, buyerRef := refs("o1", "u1")

	_, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	var mismatch *domain.SupplierMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "y", mismatch.ActiveSupplierID)

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "cart unchanged")
}

func TestRestoreToCart_PaidOrderLeavesCartAlone(t *testing.T) {
	f := newFixture(p1)
	f.orders.Seed(domain.Order{ID: "o1", BuyerID: "u1", Status: domain.StatusPaid, Success: true},
		domain.OrderLine{ProductID: "p1", Quantity: 2})
	orderRef, buyerRef := refs("o1", "u1")

	_, err := f.svc.RestoreToCart(context.Background(), orderRef, buyerRef)
	assert.ErrorIs(t, err, ErrOrderPaid)
	_, err = f.carts.GetByOwner(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no cart written")
}

func TestRestoreToCart_UnresolvedRefs(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RestoreToCart(context.Background(), domain.Ref{}, domain.NewRef(domain.CollectionUsers, "u1"))
	assert.ErrorIs(t, err, ErrUnresolvedRef)
	_, err = f.svc.RestoreToCart(context.Background(), domain.NewRef(domain.CollectionOrders, "o1"), domain.ParseRef(domain.CollectionUsers, "/suppliers/s1"))
	assert.ErrorIs(t, err, ErrUnresolvedRef)
}
