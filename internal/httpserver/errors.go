package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var sentinelStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotSignedIn, http.StatusUnauthorized, "not_signed_in"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrInvalidSignature, http.StatusForbidden, "invalid_signature"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidProduct, http.StatusBadRequest, "invalid_product"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{domain.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{domain.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{domain.ErrInvalidShippingZone, http.StatusBadRequest, "invalid_shipping_zone"},
	{domain.ErrSupplierUnresolved, http.StatusConflict, "supplier_unresolved"},
	{domain.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{domain.ErrInvalidPromo, http.StatusBadRequest, "invalid_promo"},
	{domain.ErrFailedPrecondition, http.StatusPreconditionFailed, "failed_precondition"},
	{domain.ErrPromoUnavailable, http.StatusServiceUnavailable, "promo_unavailable"},
	{domain.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
	{domain.ErrTxConflict, http.StatusConflict, "conflict_retry"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
}

// writeError maps err to a status and a stable machine code. Unknown errors
// are logged and reported as a generic 500.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var mismatch *domain.SupplierMismatchError
	if errors.As(err, &mismatch) {
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: errorBody{
			Code:    "supplier_mismatch",
			Message: "Cart supplier mismatch. Clear the cart to continue.",
			Details: map[string]any{
				"activeSupplierId": mismatch.ActiveSupplierID,
				"newSupplierId":    mismatch.NewSupplierID,
			},
		}})
		return
	}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: errorBody{
			Code:    "out_of_stock",
			Message: "This item is out of stock.",
			Details: map[string]any{
				"productId": stock.ProductID,
				"requested": stock.Requested,
				"available": stock.Available,
			},
		}})
		return
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			if s.err == domain.ErrTxConflict {
				c.Header("Retry-After", "1")
			}
			c.AbortWithStatusJSON(s.status, errorResponse{Error: errorBody{Code: s.code, Message: err.Error()}})
			return
		}
	}

	logging.FromGin(c, logger).Error("unhandled error", zap.Error(err))
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:    "internal",
		Message: "Something went wrong. Please try again.",
	}})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorBody{Code: "bad_request", Message: msg}})
}
