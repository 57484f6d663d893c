package domain

import "time"

type OrderStatus string

const (
	StatusCODPending     OrderStatus = "COD_PENDING"
	StatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	StatusPaid           OrderStatus = "PAID"
	StatusPaymentFailed  OrderStatus = "PAYMENT_FAILED"
)

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentCard
}

type Order struct {
	ID                 string        `json:"id"`
	OrderNumber        int64         `json:"orderNumber"`
	BuyerID            string        `json:"buyerId"`
	SupplierID         string        `json:"supplierId"`
	ShippingAddressID  string        `json:"shippingAddressId"`
	ShippingCostCents  int64         `json:"shippingCostCents"`
	SubtotalCents      int64         `json:"subtotalCents"`
	DiscountCents      int64         `json:"discountCents"`
	TotalPriceCents    int64         `json:"totalPriceCents"`
	PromoCode          string        `json:"promoCode,omitempty"`
	Status             OrderStatus   `json:"status"`
	PaymentMethod      PaymentMethod `json:"paymentMethod"`
	Success            bool          `json:"success"`
	GatewayIntentionID string        `json:"-"`
	GatewayOrderID     string        `json:"-"`
	StockReserved      bool          `json:"-"`
	StockReleased      bool          `json:"-"`
	PaidAt             *time.Time    `json:"paidAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	Lines              []OrderLine   `json:"lines,omitempty"`
}

// OrderLine is immutable once written. It carries no price; the charged
// amount lives on the order.
type OrderLine struct {
	OrderID   string `json:"-"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
