package handler

import (
	"time"

	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/promo"
)

type modifyItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Action    string `json:"action" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type applyPromoRequest struct {
	Code string `json:"code" binding:"required"`
}

type createPromoRequest struct {
	Code            string `json:"code" binding:"required"`
	DiscountPercent int    `json:"discountPercent" binding:"required"`
}

type itemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// orderResponse renders money as a fixed two-decimal string.
type orderResponse struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Status      string         `json:"status"`
	Total       string         `json:"total"`
	PromoID     string         `json:"promoId,omitempty"`
	Version     int64          `json:"version"`
	Items       []itemResponse `json:"items"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	ConfirmedAt *time.Time     `json:"confirmedAt,omitempty"`
}

type promoResponse struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discountPercent"`
	Available       bool      `json:"available"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]itemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemResponse{ID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return orderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Total:       o.Total.StringFixed(2),
		PromoID:     o.PromoID,
		Version:     o.Version,
		Items:       items,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		ConfirmedAt: o.ConfirmedAt,
	}
}

func toPromoResponse(p *promo.Promo) promoResponse {
	return promoResponse{
		ID:              p.ID,
		Code:            p.Code,
		DiscountPercent: p.DiscountPercent,
		Available:       p.Available,
		CreatedAt:       p.CreatedAt,
	}
}
