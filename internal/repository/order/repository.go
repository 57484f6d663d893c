package order

import (
	"context"
	"time"

	"pawmarket/internal/domain"
)

// Repository persists orders and their lines. Status changes are guarded on
// the current status so a repeated call reports false instead of applying
// twice.
type Repository interface {
	// NextOrderNumber increments the shared counter and returns the new value.
	NextOrderNumber(ctx context.Context) (int64, error)
	// Create writes the order and its lines and reserves stock for every
	// line in one transaction. Creating an order whose id already exists
	// returns the stored order unchanged.
	Create(ctx context.Context, o domain.Order, lines []domain.OrderLine) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Lines(ctx context.Context, orderID string) ([]domain.OrderLine, error)
	FindByGatewayIntention(ctx context.Context, intentionID string) (*domain.Order, error)
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	SetGatewayRefs(ctx context.Context, orderID, intentionID, gatewayOrderID string) error
	// MarkPaid moves a PAYMENT_PENDING or PAYMENT_FAILED order to PAID.
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	// MarkPaymentFailed moves a PAYMENT_PENDING order to PAYMENT_FAILED and
	// releases its reserved stock.
	MarkPaymentFailed(ctx context.Context, orderID string) (bool, error)
	// ListUnsuccessful pages through orders with success=false ordered by id.
	ListUnsuccessful(ctx context.Context, afterID string, limit int) ([]domain.Order, error)
	// DeleteAbandoned deletes an order that is not PAID together with its
	// lines, releasing stock that is still reserved.
	DeleteAbandoned(ctx context.Context, orderID string) (bool, error)
}
