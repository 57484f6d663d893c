package httpserver

import (
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
)

// Deps carries the services the routes call into.
type Deps struct {
	Auth     authenticator
	Carts    cartService
	Checkout checkoutService
	Payments paymentService
	Orders   orderReader
	Metrics  *metrics.Metrics

	CORSOrigins []string
	// Checkout requests per second allowed per buyer; zero disables the limit.
	CheckoutRate  float64
	CheckoutBurst int
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db pinger, deps Deps) (*gin.Engine, error) {
	if deps.Auth == nil || deps.Carts == nil || deps.Checkout == nil || deps.Payments == nil || deps.Orders == nil {
		return nil, errors.New("httpserver: missing service dependency")
	}
	logger = logging.OrNop(logger)
	h := &handlers{deps: deps, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  deps.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	router.POST("/webhooks/payments", h.paymentWebhook)

	api := router.Group("/api/v1", authMiddleware(deps.Auth, logger))
	api.GET("/cart", h.getCart)
	api.POST("/cart/items", h.addCartItem)
	api.PUT("/cart/items/:productId", h.setCartItem)
	api.DELETE("/cart/items/:productId", h.removeCartItem)
	api.DELETE("/cart", h.clearCart)

	checkoutHandlers := []gin.HandlerFunc{h.placeOrder}
	if deps.CheckoutRate > 0 {
		limiter := newUserLimiter(rate.Limit(deps.CheckoutRate), deps.CheckoutBurst)
		checkoutHandlers = append([]gin.HandlerFunc{limiter.rateLimit()}, checkoutHandlers...)
	}
	api.POST("/checkout", checkoutHandlers...)
	api.GET("/orders/:orderId", h.getOrder)
	api.POST("/orders/:orderId/payment-intention", h.createPaymentIntention)

	return router, nil
}
