// Package payment creates gateway payment intentions for card orders and
// applies the gateway's callbacks to them.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/events"
	"pawmarket/internal/gateway"
	"pawmarket/internal/idempotency"
	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
	"pawmarket/internal/service/restore"
)

const dedupeScope = "payment-callback"

type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
	OutcomeDuplicate Outcome = "duplicate"
)

type orderRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	FindByGatewayIntention(ctx context.Context, intentionID string) (*domain.Order, error)
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	SetGatewayRefs(ctx context.Context, orderID, intentionID, gatewayOrderID string) error
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID string) (bool, error)
}

type cartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type restorer interface {
	RestoreToCart(ctx context.Context, order, buyer domain.Ref) (restore.Result, error)
}

type gatewayClient interface {
	CreateIntention(ctx context.Context, in gateway.IntentionRequest) (*gateway.Intention, error)
	CheckoutURL(clientSecret string) string
	PublicKey() string
}

type verifier interface {
	Verify(t gateway.Transaction, sig string) bool
}

type Config struct {
	Currency        string
	NotificationURL string
	RedirectionURL  string
}

type Deps struct {
	Orders    orderRepo
	Carts     cartClearer
	Restorer  restorer
	Gateway   gatewayClient
	Signer    verifier
	Dedupe    idempotency.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Service struct {
	Deps
	cfg Config
	now func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "EGP"
	}
	return &Service{Deps: deps, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Intention is what the buyer's client needs to open the gateway checkout.
type Intention struct {
	OrderID      string `json:"orderId"`
	IntentionID  string `json:"intentionId"`
	ClientSecret string `json:"clientSecret"`
	PublicKey    string `json:"publicKey"`
	CheckoutURL  string `json:"checkoutUrl"`
}

// CreateIntention registers the order with the gateway. Only the order's
// buyer may call it, and only while the card order is unpaid. A
// PAYMENT_FAILED order may be retried; its stock is reserved again when the
// retry succeeds.
func (s *Service) CreateIntention(ctx context.Context, orderID, callerID string) (*Intention, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, domain.ErrNotSignedIn
	}
	ref := domain.ParseRef(domain.CollectionOrders, orderID)
	if ref.IsZero() {
		return nil, domain.ErrNotFound
	}
	o, err := s.Orders.GetByID(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != callerID {
		return nil, domain.ErrForbidden
	}
	if o.PaymentMethod != domain.PaymentCard || !retryable(o.Status) {
		return nil, fmt.Errorf("%w: order is %s", domain.ErrFailedPrecondition, o.Status)
	}
	if o.TotalPriceCents <= 0 {
		return nil, fmt.Errorf("%w: order total must be positive", domain.ErrFailedPrecondition)
	}
	if s.cfg.NotificationURL == "" {
		return nil, fmt.Errorf("%w: notification url not configured", domain.ErrFailedPrecondition)
	}
	if s.Gateway == nil {
		return nil, domain.ErrGatewayUnavailable
	}

	in, err := s.Gateway.CreateIntention(ctx, gateway.IntentionRequest{
		AmountCents:     o.TotalPriceCents,
		Currency:        s.cfg.Currency,
		MerchantOrderID: o.ID,
		Items: []gateway.IntentionItem{{
			Name:        fmt.Sprintf("Order #%d", o.OrderNumber),
			AmountCents: o.TotalPriceCents,
			Quantity:    1,
		}},
		Billing:         gateway.BillingData{FirstName: "NA", LastName: "NA", Email: "NA", PhoneNumber: "NA", Street: "NA", City: "NA", Country: "EG"},
		NotificationURL: s.cfg.NotificationURL,
		RedirectionURL:  s.cfg.RedirectionURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Orders.SetGatewayRefs(ctx, o.ID, in.ID, in.GatewayOrderID); err != nil {
		return nil, err
	}
	return &Intention{
		OrderID:      o.ID,
		IntentionID:  in.ID,
		ClientSecret: in.ClientSecret,
		PublicKey:    s.Gateway.PublicKey(),
		CheckoutURL:  s.Gateway.CheckoutURL(in.ClientSecret),
	}, nil
}

// HandleCallback verifies and applies a gateway callback. sig overrides the
// signature carried in the body when non-empty. A successful payment moves
// the order to PAID and empties the buyer's cart; a failed one moves it to
// PAYMENT_FAILED and puts its lines back into the cart. Both transitions are
// guarded on the current status, so a redelivered callback changes nothing.
func (s *Service) HandleCallback(ctx context.Context, cb gateway.Callback, sig string) (Outcome, error) {
	if sig == "" {
		sig = cb.HMAC
	}
	txn := cb.Obj
	log := s.Logger.With(zap.String("transaction_id", txn.ID.String()), zap.String("merchant_order_id", txn.Order.MerchantOrderID))

	if s.Signer == nil || !s.Signer.Verify(txn, sig) {
		log.Warn("payment: callback signature mismatch")
		s.Metrics.Webhook("invalid_signature")
		return "", domain.ErrInvalidSignature
	}

	txnID := txn.ID.String()
	if s.Dedupe != nil && txnID != "" {
		if prev, ok, err := s.Dedupe.Recall(ctx, dedupeScope, txnID); err != nil {
			log.Warn("payment: dedupe recall", zap.Error(err))
		} else if ok {
			log.Info("payment: callback already processed", zap.String("outcome", prev))
			s.Metrics.Webhook(string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
	}

	if txn.Pending {
		log.Info("payment: transaction pending")
		s.Metrics.Webhook(string(OutcomePending))
		return OutcomePending, nil
	}

	o, err := s.resolveOrder(ctx, txn)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("payment: callback for unknown order",
				zap.String("intention_id", txn.PaymentKeyClaims.NextPaymentIntention),
				zap.String("gateway_order_id", txn.Order.ID.String()))
			s.Metrics.Webhook("unresolved")
		}
		return "", err
	}
	log = log.With(zap.String("order_id", o.ID), zap.String("buyer_id", o.BuyerID))

	var outcome Outcome
	if txn.Success {
		outcome, err = s.applySuccess(ctx, log, o)
	} else {
		outcome, err = s.applyFailure(ctx, log, o)
	}
	if err != nil {
		return "", err
	}

	if s.Dedupe != nil && txnID != "" {
		if err := s.Dedupe.Remember(ctx, dedupeScope, txnID, string(outcome)); err != nil {
			log.Warn("payment: dedupe remember", zap.Error(err))
		}
	}
	s.Metrics.Webhook(string(outcome))
	return outcome, nil
}

func (s *Service) applySuccess(ctx context.Context, log *zap.Logger, o *domain.Order) (Outcome, error) {
	changed, err := s.Orders.MarkPaid(ctx, o.ID, s.now())
	if err != nil {
		return "", err
	}
	if !changed {
		log.Info("payment: order already settled", zap.String("status", string(o.Status)))
		return OutcomeDuplicate, nil
	}
	if err := s.Carts.ClearCart(ctx, o.BuyerID); err != nil {
		log.Error("payment: clear cart after payment", zap.Error(err))
	}
	o.Status = domain.StatusPaid
	o.Success = true
	log.Info("payment: order paid")
	events.Emit(ctx, s.Publisher, log, events.FromOrder(events.OrderPaid, *o))
	return OutcomePaid, nil
}

func (s *Service) applyFailure(ctx context.Context, log *zap.Logger, o *domain.Order) (Outcome, error) {
	changed, err := s.Orders.MarkPaymentFailed(ctx, o.ID)
	if err != nil {
		return "", err
	}
	if !changed {
		log.Info("payment: failure for settled order ignored", zap.String("status", string(o.Status)))
		return OutcomeDuplicate, nil
	}
	// The order keeps success=false, so the cleanup job retries the restore
	// if it fails here.
	res, err := s.Restorer.RestoreToCart(ctx,
		domain.NewRef(domain.CollectionOrders, o.ID),
		domain.ParseRef(domain.CollectionUsers, o.BuyerID))
	if err != nil {
		log.Error("payment: restore cart after failed payment", zap.Error(err))
	} else {
		log.Info("payment: payment failed, cart restored", zap.Int("item_count", res.RestoredItemCount))
	}
	o.Status = domain.StatusPaymentFailed
	events.Emit(ctx, s.Publisher, log, events.FromOrder(events.OrderPaymentFailed, *o))
	return OutcomeFailed, nil
}

// resolveOrder finds the order by merchant order id, then by the stored
// intention id, then by the stored gateway order id.
func (s *Service) resolveOrder(ctx context.Context, txn gateway.Transaction) (*domain.Order, error) {
	if ref := domain.ParseRef(domain.CollectionOrders, txn.Order.MerchantOrderID); !ref.IsZero() {
		o, err := s.Orders.GetByID(ctx, ref.ID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if id := strings.TrimSpace(txn.PaymentKeyClaims.NextPaymentIntention); id != "" {
		o, err := s.Orders.FindByGatewayIntention(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if id := txn.Order.ID.String(); id != "" {
		return s.Orders.FindByGatewayOrder(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func retryable(st domain.OrderStatus) bool {
	return st == domain.StatusPaymentPending || st == domain.StatusPaymentFailed
}
