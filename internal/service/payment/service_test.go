package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawmarket/internal/domain"
	"pawmarket/internal/events"
	"pawmarket/internal/gateway"
	"pawmarket/internal/idempotency"
	"pawmarket/internal/repository/cart/carttest"
	"pawmarket/internal/repository/order/ordertest"
	"pawmarket/internal/repository/product/producttest"
	cartsvc "pawmarket/internal/service/cart"
	"pawmarket/internal/service/restore"
)

const secret = "hmac-secret"

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

type stubGateway struct {
	intention *gateway.Intention
	err       error
	lastReq   gateway.IntentionRequest
	calls     int
}

func (s *stubGateway) CreateIntention(_ context.Context, in gateway.IntentionRequest) (*gateway.Intention, error) {
	s.calls++
	s.lastReq = in
	return s.intention, s.err
}

func (s *stubGateway) CheckoutURL(clientSecret string) string {
	return "https://pay.example/checkout?cs=" + clientSecret
}

func (s *stubGateway) PublicKey() string { return "pk_test" }

type fixture struct {
	svc       *Service
	carts     *carttest.Memory
	orders    *ordertest.Memory
	catalog   *producttest.Memory
	gateway   *stubGateway
	published *recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalog := producttest.New(
		domain.Product{ID: "p1", SupplierID: "x", PriceCents: 100, Quantity: 10},
		domain.Product{ID: "p2", SupplierID: "x", PriceCents: 250, Quantity: 10},
	)
	carts := carttest.New()
	orders := ordertest.New(catalog)
	gw := &stubGateway{intention: &gateway.Intention{ID: "pi_1", ClientSecret: "cs_1", GatewayOrderID: "9001"}}
	rec := &recorder{}
	svc := New(Config{NotificationURL: "https://api.example/webhooks/payments"}, Deps{
		Orders:    orders,
		Carts:     cartsvc.New(carts, catalog, nil),
		Restorer:  restore.New(carts, orders, catalog, nil),
		Gateway:   gw,
		Signer:    gateway.NewSigner(secret),
		Dedupe:    idempotency.NewMemoryStore(0),
		Publisher: rec,
	})
	return fixture{svc: svc, carts: carts, orders: orders, catalog: catalog, gateway: gw, published: rec}
}

func pendingOrder(id string) domain.Order {
	return domain.Order{
		ID:              id,
		OrderNumber:     1001,
		BuyerID:         "u1",
		SupplierID:      "x",
		TotalPriceCents: 550,
		Status:          domain.StatusPaymentPending,
		PaymentMethod:   domain.PaymentCard,
	}
}

func callback(t *testing.T, txnID, merchantOrderID string, success bool) (gateway.Callback, string) {
	t.Helper()
	cb := gateway.Callback{
		Type: "TRANSACTION",
		Obj: gateway.Transaction{
			ID:          json.Number(txnID),
			AmountCents: "550",
			CreatedAt:   "2026-01-01T10:00:00",
			Currency:    "EGP",
			Order:       gateway.TransactionOrder{ID: "9001", MerchantOrderID: merchantOrderID},
			Owner:       "77",
			Success:     success,
		},
	}
	return cb, gateway.NewSigner(secret).Sign(cb.Obj)
}

func TestHandleCallback_SuccessClearsCart(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})
	f.carts.Seed("u1", domain.CartItem{ProductID: "q9", SupplierID: "y", Quantity: 3, UnitPriceCents: 50})

	cb, sig := callback(t, "t1", "o1", true)
	outcome, err := f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)

	o, err := f.orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.True(t, o.Success)
	assert.NotNil(t, o.PaidAt)

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.TotalCents)
	assert.Zero(t, c.ItemCount)

	require.Len(t, f.published.events, 1)
	assert.Equal(t, events.OrderPaid, f.published.events[0].Type)
}

func TestHandleCallback_TamperedSignature(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})

	cb, sig := callback(t, "t1", "o1", true)
	cb.Obj.AmountCents = "1"
	_, err := f.svc.HandleCallback(context.Background(), cb, sig)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	o, err := f.orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, o.Status)
	assert.Empty(t, f.published.events)
}

func TestHandleCallback_SignatureFromBody(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})

	cb, sig := callback(t, "t1", "o1", true)
	cb.HMAC = sig
	outcome, err := f.svc.HandleCallback(context.Background(), cb, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)
}

func TestHandleCallback_FailureRestoresOnce(t *testing.T) {
	f := newFixture(t)
	o := pendingOrder("o1")
	_, err := f.orders.Create(context.Background(), o, []domain.OrderLine{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 7, f.catalog.Stock("p1"))

	cb, sig := callback(t, "t1", "o1", false)
	outcome, err := f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 10, f.catalog.Stock("p1"), "stock released")

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, c.ItemCount)
	assert.Equal(t, int64(550), c.TotalCents)

	// The buyer trims the cart, then the gateway redelivers.
	_, err = cartsvc.New(f.carts, f.catalog, nil).SetQuantity(context.Background(), "u1", "p1", 1)
	require.NoError(t, err)

	outcome, err = f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// A different delivery id for the same failure is caught by the status guard.
	cb2, sig2 := callback(t, "t2", "o1", false)
	outcome, err = f.svc.HandleCallback(context.Background(), cb2, sig2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	c, err = f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.ItemCount, "no second restore")
	assert.Equal(t, 10, f.catalog.Stock("p1"), "no second release")
}

func TestHandleCallback_DuplicateSuccess(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})

	cb, sig := callback(t, "t1", "o1", true)
	_, err := f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)

	f.carts.Seed("u1", domain.CartItem{ProductID: "p2", SupplierID: "x", Quantity: 1, UnitPriceCents: 250})
	cb2, sig2 := callback(t, "t9", "o1", true)
	outcome, err := f.svc.HandleCallback(context.Background(), cb2, sig2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	c, err := f.carts.GetByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "new cart contents are not cleared again")
	assert.Len(t, f.published.events, 1)
}

func TestHandleCallback_FailureAfterPaidIgnored(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})

	cb, sig := callback(t, "t1", "o1", true)
	_, err := f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)

	fail, failSig := callback(t, "t2", "o1", false)
	outcome, err := f.svc.HandleCallback(context.Background(), fail, failSig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	o, err := f.orders.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
}

func TestHandleCallback_ResolutionOrder(t *testing.T) {
	f := newFixture(t)
	byIntention := pendingOrder("o-intention")
	byIntention.GatewayIntentionID = "pi_42"
	f.orders.Seed(byIntention, domain.OrderLine{ProductID: "p1", Quantity: 1})
	byGatewayOrder := pendingOrder("o-gateway")
	byGatewayOrder.GatewayOrderID = "9001"
	f.orders.Seed(byGatewayOrder, domain.OrderLine{ProductID: "p1", Quantity: 1})

	cb, _ := callback(t, "t1", "", true)
	cb.Obj.PaymentKeyClaims.NextPaymentIntention = "pi_42"
	_, err := f.svc.HandleCallback(context.Background(), cb, gateway.NewSigner(secret).Sign(cb.Obj))
	require.NoError(t, err)
	o, _ := f.orders.GetByID(context.Background(), "o-intention")
	assert.Equal(t, domain.StatusPaid, o.Status)

	cb, sig := callback(t, "t2", "/orders/unknown", true)
	_, err = f.svc.HandleCallback(context.Background(), cb, sig)
	require.NoError(t, err)
	o, _ = f.orders.GetByID(context.Background(), "o-gateway")
	assert.Equal(t, domain.StatusPaid, o.Status)
}

func TestHandleCallback_Unresolved(t *testing.T) {
	f := newFixture(t)
	cb, sig := callback(t, "t1", "nope", true)
	_, err := f.svc.HandleCallback(context.Background(), cb, sig)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleCallback_PendingAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"), domain.OrderLine{ProductID: "p1", Quantity: 2})

	cb, _ := callback(t, "t1", "o1", false)
	cb.Obj.Pending = true
	outcome, err := f.svc.HandleCallback(context.Background(), cb, gateway.NewSigner(secret).Sign(cb.Obj))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)

	o, _ := f.orders.GetByID(context.Background(), "o1")
	assert.Equal(t, domain.StatusPaymentPending, o.Status)
}

func TestCreateIntention(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"))

	in, err := f.svc.CreateIntention(context.Background(), "o1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", in.IntentionID)
	assert.Equal(t, "pk_test", in.PublicKey)
	assert.Contains(t, in.CheckoutURL, "cs_1")
	assert.Equal(t, int64(550), f.gateway.lastReq.AmountCents)
	assert.Equal(t, "o1", f.gateway.lastReq.MerchantOrderID)

	o, _ := f.orders.GetByID(context.Background(), "o1")
	assert.Equal(t, "pi_1", o.GatewayIntentionID)
	assert.Equal(t, "9001", o.GatewayOrderID)
}

func TestCreateIntention_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"))
	free := pendingOrder("free")
	free.TotalPriceCents = 0
	f.orders.Seed(free)
	cod := pendingOrder("cod")
	cod.PaymentMethod = domain.PaymentCOD
	cod.Status = domain.StatusCODPending
	f.orders.Seed(cod)
	paid := pendingOrder("paid")
	paid.Status = domain.StatusPaid
	paid.Success = true
	f.orders.Seed(paid)

	_, err := f.svc.CreateIntention(context.Background(), "o1", "")
	assert.ErrorIs(t, err, domain.ErrNotSignedIn)
	_, err = f.svc.CreateIntention(context.Background(), "o1", "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.CreateIntention(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.CreateIntention(context.Background(), "free", "u1")
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
	_, err = f.svc.CreateIntention(context.Background(), "cod", "u1")
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
	_, err = f.svc.CreateIntention(context.Background(), "paid", "u1")
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)

	f.svc.cfg.NotificationURL = ""
	_, err = f.svc.CreateIntention(context.Background(), "o1", "u1")
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
	assert.Zero(t, f.gateway.calls)
}

func TestCreateIntention_RetryAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orders.Create(ctx, pendingOrder("o1"), []domain.OrderLine{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}})
	require.NoError(t, err)

	cb, sig := callback(t, "t1", "o1", false)
	outcome, err := f.svc.HandleCallback(ctx, cb, sig)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 10, f.catalog.Stock("p1"))

	f.gateway.intention = &gateway.Intention{ID: "pi_2", ClientSecret: "cs_2", GatewayOrderID: "9002"}
	in, err := f.svc.CreateIntention(ctx, "o1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "pi_2", in.IntentionID)
	assert.Equal(t, 1, f.gateway.calls)

	o, _ := f.orders.GetByID(ctx, "o1")
	assert.Equal(t, domain.StatusPaymentFailed, o.Status)
	assert.Equal(t, "pi_2", o.GatewayIntentionID)

	cb2, sig2 := callback(t, "t2", "o1", true)
	outcome, err = f.svc.HandleCallback(ctx, cb2, sig2)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)

	o, _ = f.orders.GetByID(ctx, "o1")
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.Equal(t, 7, f.catalog.Stock("p1"), "stock reserved again")
	c, err := f.carts.GetByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestCreateIntention_GatewayDown(t *testing.T) {
	f := newFixture(t)
	f.orders.Seed(pendingOrder("o1"))
	f.gateway.err = domain.ErrGatewayUnavailable

	_, err := f.svc.CreateIntention(context.Background(), "o1", "u1")
	assert.True(t, errors.Is(err, domain.ErrGatewayUnavailable))
	o, _ := f.orders.GetByID(context.Background(), "o1")
	assert.Equal(t, domain.StatusPaymentPending, o.Status)
}
