package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pawmarket/internal/domain"
	"pawmarket/internal/gateway"
	"pawmarket/internal/service/checkout"
	"pawmarket/internal/service/payment"
)

type checkoutService interface {
	PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (*checkout.Result, error)
}

type paymentService interface {
	CreateIntention(ctx context.Context, orderID, callerID string) (*payment.Intention, error)
	HandleCallback(ctx context.Context, cb gateway.Callback, sig string) (payment.Outcome, error)
}

type orderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

func (h *handlers) placeOrder(c *gin.Context) {
	var in checkout.PlaceOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid checkout body")
		return
	}
	in.BuyerID = currentUser(c)
	res, err := h.deps.Checkout.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// getOrder answers 404 for orders of other buyers.
func (h *handlers) getOrder(c *gin.Context) {
	ref := domain.ParseRef(domain.CollectionOrders, c.Param("orderId"))
	if ref.IsZero() {
		writeError(c, h.logger, domain.ErrNotFound)
		return
	}
	o, err := h.deps.Orders.GetByID(c.Request.Context(), ref.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if o.BuyerID != currentUser(c) {
		writeError(c, h.logger, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) createPaymentIntention(c *gin.Context) {
	in, err := h.deps.Payments.CreateIntention(c.Request.Context(), c.Param("orderId"), currentUser(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, in)
}
