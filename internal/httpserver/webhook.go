package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pawmarket/internal/gateway"
	"pawmarket/internal/logging"
)

// paymentWebhook receives gateway transaction callbacks. The signature is
// taken from the hmac query parameter, falling back to the body.
func (h *handlers) paymentWebhook(c *gin.Context) {
	var cb gateway.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		badRequest(c, "invalid callback body")
		return
	}
	outcome, err := h.deps.Payments.HandleCallback(c.Request.Context(), cb, c.Query("hmac"))
	if err != nil {
		logging.FromGin(c, h.logger).Warn("payment webhook rejected",
			zap.String("transaction_id", cb.Obj.ID.String()), zap.Error(err))
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
