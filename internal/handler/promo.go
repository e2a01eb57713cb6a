package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreatePromo handles POST /admin/promos.
func (h *Handler) CreatePromo(c *gin.Context) {
	var req createPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.promos.Create(c.Request.Context(), req.Code, req.DiscountPercent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPromoResponse(p))
}

// DeletePromo handles DELETE /admin/promos/:id.
func (h *Handler) DeletePromo(c *gin.Context) {
	if err := h.promos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPromos handles GET /admin/promos.
func (h *Handler) ListPromos(c *gin.Context) {
	promos, err := h.promos.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]promoResponse, len(promos))
	for i := range promos {
		resp[i] = toPromoResponse(&promos[i])
	}
	c.JSON(http.StatusOK, resp)
}
