// Package checkout turns a buyer's cart into an order.
package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/events"
	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
	"pawmarket/internal/promo"
	"pawmarket/internal/service/payment"
)

type cartReader interface {
	GetByOwner(ctx context.Context, ownerID string) (*domain.Cart, error)
}

type cartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type productRepo interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type addressRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Address, error)
}

type shippingRepo interface {
	GetByID(ctx context.Context, id string) (*domain.ShippingRate, error)
}

type orderRepo interface {
	NextOrderNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, o domain.Order, lines []domain.OrderLine) (*domain.Order, error)
}

type promoService interface {
	Validate(ctx context.Context, code, cartID string) (*promo.Validation, error)
	Commit(ctx context.Context, code, cartID, orderID string, discountCents int64) error
}

type intentionCreator interface {
	CreateIntention(ctx context.Context, orderID, callerID string) (*payment.Intention, error)
}

type Deps struct {
	Carts     cartReader
	Clearer   cartClearer
	Products  productRepo
	Addresses addressRepo
	Rates     shippingRepo
	Orders    orderRepo
	Promo     promoService
	Payments  intentionCreator
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Service struct {
	Deps
	newID func() string
}

func New(deps Deps) *Service {
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &Service{Deps: deps, newID: uuid.NewString}
}

type PlaceOrderInput struct {
	BuyerID        string               `json:"-"`
	AddressID      string               `json:"addressId"`
	ShippingRateID string               `json:"shippingRateId"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	PromoCode      string               `json:"promoCode,omitempty"`
}

// Result is the placed order. For card orders Payment holds the checkout
// target; when the gateway could not be reached PaymentError is set and the
// order stays PAYMENT_PENDING so payment can be retried.
type Result struct {
	Order        *domain.Order      `json:"order"`
	Payment      *payment.Intention `json:"payment,omitempty"`
	PaymentError string             `json:"paymentError,omitempty"`
}

// PlaceOrder validates the cart and its shipping choices, allocates an order
// number and writes the order with its lines while reserving stock. Cash
// orders clear the cart right away; card orders keep it until the payment
// callback confirms success.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Result, error) {
	if strings.TrimSpace(in.BuyerID) == "" {
		return nil, domain.ErrNotSignedIn
	}
	if !in.PaymentMethod.Valid() {
		return nil, domain.ErrInvalidPaymentMethod
	}

	c, err := s.Carts.GetByOwner(ctx, in.BuyerID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && len(c.Items) == 0) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	addr, err := s.address(ctx, in.BuyerID, in.AddressID)
	if err != nil {
		return nil, err
	}
	rate, err := s.rate(ctx, addr.Zone, in.ShippingRateID)
	if err != nil {
		return nil, err
	}
	supplierID, err := singleSupplier(c.Items)
	if err != nil {
		return nil, err
	}
	if err := s.verifyStock(ctx, c.Items); err != nil {
		return nil, err
	}

	subtotal, _ := domain.Totals(c.Items)
	var discount int64
	code := strings.TrimSpace(in.PromoCode)
	if code != "" {
		if s.Promo == nil {
			return nil, domain.ErrPromoUnavailable
		}
		v, err := s.Promo.Validate(ctx, code, c.ID)
		if err != nil {
			return nil, err
		}
		discount = v.DiscountCents
	}

	number, err := s.Orders.NextOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	status := domain.StatusPaymentPending
	if in.PaymentMethod == domain.PaymentCOD {
		status = domain.StatusCODPending
	}
	lines := make([]domain.OrderLine, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, domain.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := s.Orders.Create(ctx, domain.Order{
		ID:                s.newID(),
		OrderNumber:       number,
		BuyerID:           in.BuyerID,
		SupplierID:        supplierID,
		ShippingAddressID: addr.ID,
		ShippingCostCents: rate.CostCents,
		SubtotalCents:     subtotal,
		DiscountCents:     discount,
		TotalPriceCents:   max(0, subtotal-discount+rate.CostCents),
		PromoCode:         code,
		Status:            status,
		PaymentMethod:     in.PaymentMethod,
	}, lines)
	if err != nil {
		return nil, err
	}
	o.Lines = lines

	log := s.Logger.With(zap.String("order_id", o.ID), zap.Int64("order_number", o.OrderNumber), zap.String("buyer_id", o.BuyerID))
	log.Info("checkout: order placed", zap.String("payment_method", string(o.PaymentMethod)), zap.Int64("total_cents", o.TotalPriceCents))
	s.Metrics.OrderPlaced(string(o.PaymentMethod))
	events.Emit(ctx, s.Publisher, log, events.FromOrder(events.OrderPlaced, *o))

	if code != "" {
		if err := s.Promo.Commit(ctx, code, c.ID, o.ID, discount); err != nil {
			log.Warn("checkout: promo commit failed", zap.String("promo_code", code), zap.Error(err))
		}
	}

	res := &Result{Order: o}
	if o.PaymentMethod == domain.PaymentCOD {
		if err := s.Clearer.ClearCart(ctx, o.BuyerID); err != nil {
			log.Error("checkout: clear cart after cash order", zap.Error(err))
		}
		return res, nil
	}

	if s.Payments == nil {
		res.PaymentError = domain.ErrGatewayUnavailable.Error()
		return res, nil
	}
	intention, err := s.Payments.CreateIntention(ctx, o.ID, o.BuyerID)
	if err != nil {
		log.Error("checkout: payment intention", zap.Error(err))
		res.PaymentError = err.Error()
		return res, nil
	}
	res.Payment = intention
	return res, nil
}

func (s *Service) address(ctx context.Context, buyerID, id string) (*domain.Address, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidAddress
	}
	addr, err := s.Addresses.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidAddress
	}
	if err != nil {
		return nil, err
	}
	if addr.OwnerID != buyerID || addr.Zone == "" {
		return nil, domain.ErrInvalidAddress
	}
	return addr, nil
}

func (s *Service) rate(ctx context.Context, zone, id string) (*domain.ShippingRate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidShippingZone
	}
	rate, err := s.Rates.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidShippingZone
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(rate.Zone, zone) {
		return nil, domain.ErrInvalidShippingZone
	}
	return rate, nil
}

// verifyStock rejects the checkout when any line asks for more than the
// catalog currently holds. The order write re-checks atomically.
func (s *Service) verifyStock(ctx context.Context, items []domain.CartItem) error {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	live, err := s.Products.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, it := range items {
		p, ok := live[it.ProductID]
		if !ok || it.Quantity > p.Quantity {
			return &domain.InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Quantity}
		}
	}
	return nil
}

func singleSupplier(items []domain.CartItem) (string, error) {
	supplierID := ""
	for _, it := range items {
		switch {
		case it.SupplierID == "":
			return "", domain.ErrSupplierUnresolved
		case supplierID == "":
			supplierID = it.SupplierID
		case supplierID != it.SupplierID:
			return "", domain.ErrSupplierUnresolved
		}
	}
	if supplierID == "" {
		return "", domain.ErrSupplierUnresolved
	}
	return supplierID, nil
}
