// Package handler exposes the cart, order and promo admin services over HTTP
// using gin.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/promo"
)

// PromoService is the promo administration API used by the admin routes.
type PromoService interface {
	Create(ctx context.Context, code string, discountPercent int) (*promo.Promo, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]promo.Promo, error)
}

// Authenticator resolves an API key and checks its scope.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// Handler translates HTTP requests into service calls.
type Handler struct {
	cart   order.Cart
	promos PromoService
	auth   Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cart order.Cart, promos PromoService, authenticator Authenticator) *Handler {
	return &Handler{
		cart:   cart,
		promos: promos,
		auth:   authenticator,
	}
}

// Register mounts all routes on r. Cart routes require the cart scope and a
// caller identity, admin routes require the admin scope.
func (h *Handler) Register(r gin.IRouter) {
	cart := r.Group("/cart", h.requireScope(auth.ScopeCart), requireUser())
	cart.GET("", h.GetCart)
	cart.POST("/items", h.ModifyItem)
	cart.DELETE("/items/:productId", h.RemoveItem)
	cart.POST("/promo", h.ApplyPromo)
	cart.POST("/confirm", h.Confirm)
	cart.DELETE("", h.ClearCart)

	orders := r.Group("/orders", h.requireScope(auth.ScopeCart), requireUser())
	orders.GET("", h.ListOrders)

	admin := r.Group("/admin", h.requireScope(auth.ScopeAdmin))
	admin.POST("/promos", h.CreatePromo)
	admin.DELETE("/promos/:id", h.DeletePromo)
	admin.GET("/promos", h.ListPromos)
}

// NewRouter returns a gin engine serving the API under prefix.
func NewRouter(h *Handler, prefix string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(routeSpan())
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.Register(r.Group(prefix))
	return r
}
