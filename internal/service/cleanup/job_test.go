package cleanup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawmarket/internal/domain"
	"pawmarket/internal/events"
	"pawmarket/internal/metrics"
	"pawmarket/internal/repository/cart/carttest"
	"pawmarket/internal/repository/order/ordertest"
	"pawmarket/internal/repository/product/producttest"
	"pawmarket/internal/service/restore"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	job     *Job
	carts   *carttest.Memory
	orders  *ordertest.Memory
	catalog *producttest.Memory
	events  *recorder
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	catalog := producttest.New(
		domain.Product{ID: "p1", SupplierID: "x", PriceCents: 100, Quantity: 7},
		domain.Product{ID: "p2", SupplierID: "x", PriceCents: 250, Quantity: 4},
	)
	carts := carttest.New()
	orders := ordertest.New(catalog)
	rec := &recorder{}
	m := metrics.New()
	job := New(orders, restore.New(carts, orders, catalog, nil), rec, m, nil, opts)
	return fixture{job: job, carts: carts, orders: orders, catalog: catalog, events: rec, metrics: m}
}

func stale(id, buyer string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            id,
		BuyerID:       buyer,
		SupplierID:    "x",
		Status:        status,
		PaymentMethod: domain.PaymentCard,
		StockReserved: true,
		UpdatedAt:     time.Now().UTC().Add(-time.Hour),
	}
}

func TestRun_RestoresThenDeletes(t *testing.T) {
	f := newFixture(t, Options{})
	f.orders.Seed(stale("o1", "u1", domain.StatusPaymentPending),
		domain.OrderLine{ProductID: "p1", Quantity: 3},
		domain.OrderLine{ProductID: "p2", Quantity: 1})

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Deleted: 1}, rep)

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, c.ItemCount)
	assert.Equal(t, int64(3*100+250), c.TotalCents)
	assert.False(t, f.orders.Exists("o1"))

	assert.Equal(t, 10, f.catalog.Stock("p1"), "reserved stock released")
	assert.Equal(t, 5, f.catalog.Stock("p2"))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.OrderReclaimed, f.events.events[0].Type)
}

func TestRun_FailedPaymentNotReleasedTwice(t *testing.T) {
	f := newFixture(t, Options{})
	o := stale("o1", "u1", domain.StatusPaymentFailed)
	o.StockReleased = true
	f.orders.Seed(o, domain.OrderLine{ProductID: "p1", Quantity: 3})

	_, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, f.catalog.Stock("p1"))
	assert.False(t, f.orders.Exists("o1"))
}

func TestRun_Skips(t *testing.T) {
	f := newFixture(t, Options{})
	paid := stale("a-paid", "u1", domain.StatusPaid)
	f.orders.Seed(paid, domain.OrderLine{ProductID: "p1", Quantity: 1})
	f.orders.Seed(stale("b-cash", "u1", domain.StatusCODPending), domain.OrderLine{ProductID: "p1", Quantity: 1})
	fresh := stale("c-fresh", "u1", domain.StatusPaymentPending)
	fresh.UpdatedAt = time.Now().UTC()
	f.orders.Seed(fresh, domain.OrderLine{ProductID: "p1", Quantity: 1})
	f.orders.Seed(stale("d-nobuyer", "", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 1})
	f.orders.Seed(stale("e-foreign", "suppliers/u1", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 1})

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 5, SkippedPaid: 1, SkippedCash: 1, SkippedFresh: 1, SkippedUnresolved: 2}, rep)
	for _, id := range []string{"a-paid", "b-cash", "c-fresh", "d-nobuyer", "e-foreign"} {
		assert.True(t, f.orders.Exists(id), id)
	}
	_, err = f.carts.GetByOwner(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no restore attempted")
}

// paidAfterListing settles every listed order before the job acts on it, as
// a late success callback would.
type paidAfterListing struct {
	*ordertest.Memory
}

func (p paidAfterListing) ListUnsuccessful(ctx context.Context, afterID string, limit int) ([]domain.Order, error) {
	page, err := p.Memory.ListUnsuccessful(ctx, afterID, limit)
	if err != nil {
		return nil, err
	}
	for _, o := range page {
		if _, err := p.MarkPaid(ctx, o.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func TestRun_PaidAfterListingIsNotRestored(t *testing.T) {
	f := newFixture(t, Options{})
	f.orders.Seed(stale("o1", "u1", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 3})
	job := New(paidAfterListing{f.orders}, restore.New(f.carts, f.orders, f.catalog, nil), f.events, nil, nil, Options{})

	rep, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, SkippedPaid: 1}, rep)

	o, err := f.orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	_, err = f.carts.GetByOwner(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "paid lines stay out of the cart")
	assert.Equal(t, 7, f.catalog.Stock("p1"))
	assert.Empty(t, f.events.events)
}

func TestRun_RestoreFailureBlocksDelete(t *testing.T) {
	f := newFixture(t, Options{})
	f.carts.Seed("u1", domain.CartItem{ProductID: "q1", SupplierID: "y", Quantity: 1, UnitPriceCents: 10})
	f.orders.Seed(stale("o1", "u1", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 3})
	f.orders.Seed(stale("o2", "u2", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p2", Quantity: 1})

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RestoreFailed)
	assert.Equal(t, 1, rep.Deleted)
	assert.True(t, f.orders.Exists("o1"))
	assert.False(t, f.orders.Exists("o2"))
	assert.Equal(t, 7, f.catalog.Stock("p1"), "stock stays reserved for the kept order")
}

func TestRun_StoreErrorBlocksDelete(t *testing.T) {
	f := newFixture(t, Options{})
	f.orders.Seed(stale("o1", "u1", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 3})
	f.carts.TxErr = errors.New("store down")

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, RestoreFailed: 1}, rep)
	assert.True(t, f.orders.Exists("o1"))
	assert.Empty(t, f.events.events)
}

func TestRun_DeleteFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.orders.Seed(stale("o1", "u1", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p1", Quantity: 3})
	f.orders.DeleteErr = errors.New("delete failed")

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.DeleteFailed)
	assert.True(t, f.orders.Exists("o1"))

	// The restore already ran; the next run merges again without doubling.
	f.orders.DeleteErr = nil
	rep, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deleted)
	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemCount)
}

func TestRun_MaxDeletesAcrossPages(t *testing.T) {
	f := newFixture(t, Options{MaxDeletes: 5, PageSize: 2})
	for i := 0; i < 8; i++ {
		f.orders.Seed(stale(fmt.Sprintf("o%02d", i), fmt.Sprintf("u%d", i), domain.StatusPaymentPending),
			domain.OrderLine{ProductID: "p1", Quantity: 1})
	}

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Deleted)
	assert.Equal(t, 5, rep.Scanned)
	for i := 0; i < 8; i++ {
		assert.Equal(t, i >= 5, f.orders.Exists(fmt.Sprintf("o%02d", i)))
	}

	rep, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Deleted)

	w := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `pawmarket_cleanup_orders_total{outcome="deleted"} 8`)
	assert.Contains(t, w.Body.String(), "pawmarket_cleanup_runs_total 2")
}

func TestRun_SkippedOrdersDoNotStallPaging(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	for i := 0; i < 3; i++ {
		f.orders.Seed(stale(fmt.Sprintf("a%d", i), "u1", domain.StatusCODPending))
	}
	f.orders.Seed(stale("z", "u9", domain.StatusPaymentPending), domain.OrderLine{ProductID: "p2", Quantity: 2})

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Scanned)
	assert.Equal(t, 1, rep.Deleted)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	j := New(nil, nil, nil, nil, nil, Options{})
	assert.Equal(t, Options{OlderThan: 10 * time.Minute, MaxDeletes: 100, PageSize: 50}, j.opts)
}
