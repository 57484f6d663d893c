package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pawmarket/internal/domain"
)

type cartService interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, delta int) (*domain.Cart, error)
	SetQuantity(ctx context.Context, userID, productID string, target int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type cartResponse struct {
	ID         string            `json:"id,omitempty"`
	TotalCents int64             `json:"totalCents"`
	ItemCount  int               `json:"itemCount"`
	Items      []domain.CartItem `json:"items"`
}

func toCartResponse(c *domain.Cart) cartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartResponse{ID: c.ID, TotalCents: c.TotalCents, ItemCount: c.ItemCount, Items: items}
}

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.Carts.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "productId and quantity are required")
		return
	}
	cart, err := h.deps.Carts.AddItem(c.Request.Context(), currentUser(c), req.ProductID, req.Quantity)
	h.deps.Metrics.CartMutation("add", err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) setCartItem(c *gin.Context) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "quantity is required")
		return
	}
	cart, err := h.deps.Carts.SetQuantity(c.Request.Context(), currentUser(c), c.Param("productId"), *req.Quantity)
	h.deps.Metrics.CartMutation("set", err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) removeCartItem(c *gin.Context) {
	cart, err := h.deps.Carts.RemoveItem(c.Request.Context(), currentUser(c), c.Param("productId"))
	h.deps.Metrics.CartMutation("remove", err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handlers) clearCart(c *gin.Context) {
	err := h.deps.Carts.ClearCart(c.Request.Context(), currentUser(c))
	h.deps.Metrics.CartMutation("clear", err)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
