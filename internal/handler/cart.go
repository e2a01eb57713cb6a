package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// GetCart handles GET /cart.
func (h *Handler) GetCart(c *gin.Context) {
	o, err := h.cart.EnsureCart(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// ModifyItem handles POST /cart/items.
func (h *Handler) ModifyItem(c *gin.Context) {
	var req modifyItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	action, err := order.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	o, err := h.cart.ModifyItem(c.Request.Context(), userID(c), req.ProductID, action, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// RemoveItem handles DELETE /cart/items/:productId.
func (h *Handler) RemoveItem(c *gin.Context) {
	o, err := h.cart.ModifyItem(c.Request.Context(), userID(c), c.Param("productId"), order.ActionRemoveAll, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// ApplyPromo handles POST /cart/promo.
func (h *Handler) ApplyPromo(c *gin.Context) {
	var req applyPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.cart.ApplyPromo(c.Request.Context(), userID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// Confirm handles POST /cart/confirm.
func (h *Handler) Confirm(c *gin.Context) {
	o, err := h.cart.Confirm(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// ClearCart handles DELETE /cart.
func (h *Handler) ClearCart(c *gin.Context) {
	o, err := h.cart.Clear(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// ListOrders handles GET /orders.
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.cart.ListConfirmed(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	c.JSON(http.StatusOK, resp)
}
