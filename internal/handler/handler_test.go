package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/apperr"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/promo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	cartKey  = "cart-key"
	adminKey = "admin-key"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, key, scope string) (*auth.APIKeyInfo, error) {
	var info *auth.APIKeyInfo
	switch key {
	case cartKey:
		info = &auth.APIKeyInfo{ID: "k1", Name: "storefront", Scopes: []string{auth.ScopeCart}}
	case adminKey:
		info = &auth.APIKeyInfo{ID: "k2", Name: "backoffice", Scopes: []string{auth.ScopeCart, auth.ScopeAdmin}}
	default:
		return nil, auth.ErrUnauthorized
	}
	if !info.HasScope(scope) {
		return nil, auth.ErrForbidden
	}
	return info, nil
}

type modifyCall struct {
	userID    string
	productID string
	action    order.Action
	quantity  int
}

type fakeCart struct {
	order  *order.Order
	orders []order.Order
	err    error

	modified []modifyCall
	code     string
}

func (f *fakeCart) result() (*order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeCart) EnsureCart(context.Context, string) (*order.Order, error) { return f.result() }

func (f *fakeCart) ModifyItem(_ context.Context, userID, productID string, action order.Action, quantity int) (*order.Order, error) {
	f.modified = append(f.modified, modifyCall{userID, productID, action, quantity})
	return f.result()
}

func (f *fakeCart) ApplyPromo(_ context.Context, _ string, code string) (*order.Order, error) {
	f.code = code
	return f.result()
}

func (f *fakeCart) Confirm(context.Context, string) (*order.Order, error) { return f.result() }

func (f *fakeCart) Clear(context.Context, string) (*order.Order, error) { return f.result() }

func (f *fakeCart) ListConfirmed(context.Context, string) ([]order.Order, error) {
	return f.orders, f.err
}

type fakePromos struct {
	created *promo.Promo
	list    []promo.Promo
	err     error
	deleted string
}

func (f *fakePromos) Create(_ context.Context, code string, percent int) (*promo.Promo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &promo.Promo{ID: "pr1", Code: code, DiscountPercent: percent, Available: true}
	return f.created, nil
}

func (f *fakePromos) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

func (f *fakePromos) List(context.Context) ([]promo.Promo, error) {
	return f.list, f.err
}

func pendingOrder() *order.Order {
	return &order.Order{
		ID:      "o1",
		UserID:  "u1",
		Status:  order.StatusPending,
		Total:   decimal.RequireFromString("80"),
		PromoID: "pr1",
		Version: 3,
		Items:   []order.Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
	}
}

func serve(t *testing.T, h *Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	NewRouter(h, "/api").ServeHTTP(w, req)
	return w
}

func cartHeaders() map[string]string {
	return map[string]string{HeaderAPIKey: cartKey, HeaderUserID: "u1"}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetCart(t *testing.T) {
	cart := &fakeCart{order: pendingOrder()}
	w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodGet, "/api/cart", "", cartHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	var resp orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "o1", resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "80.00", resp.Total)
	assert.Equal(t, "pr1", resp.PromoID)
	assert.Equal(t, []itemResponse{{ID: "i1", ProductID: "p1", Quantity: 2}}, resp.Items)
}

func TestSecurity(t *testing.T) {
	for _, tc := range []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
	}{
		{name: "missing key", method: http.MethodGet, path: "/api/cart", headers: map[string]string{HeaderUserID: "u1"}, status: http.StatusUnauthorized},
		{name: "unknown key", method: http.MethodGet, path: "/api/cart", headers: map[string]string{HeaderAPIKey: "nope", HeaderUserID: "u1"}, status: http.StatusUnauthorized},
		{name: "missing user", method: http.MethodGet, path: "/api/cart", headers: map[string]string{HeaderAPIKey: cartKey}, status: http.StatusBadRequest},
		{name: "blank user", method: http.MethodGet, path: "/api/orders", headers: map[string]string{HeaderAPIKey: cartKey, HeaderUserID: "  "}, status: http.StatusBadRequest},
		{name: "cart key on admin route", method: http.MethodGet, path: "/api/admin/promos", headers: map[string]string{HeaderAPIKey: cartKey}, status: http.StatusForbidden},
		{name: "admin key on admin route", method: http.MethodGet, path: "/api/admin/promos", headers: map[string]string{HeaderAPIKey: adminKey}, status: http.StatusOK},
		{name: "admin key on cart route", method: http.MethodGet, path: "/api/cart", headers: map[string]string{HeaderAPIKey: adminKey, HeaderUserID: "u1"}, status: http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeCart{order: pendingOrder()}, &fakePromos{}, fakeAuth{})
			w := serve(t, h, tc.method, tc.path, "", tc.headers)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestModifyItem(t *testing.T) {
	cart := &fakeCart{order: pendingOrder()}
	h := NewHandler(cart, &fakePromos{}, fakeAuth{})

	w := serve(t, h, http.MethodPost, "/api/cart/items", `{"productId":"p1","action":"ADD","quantity":2}`, cartHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, cart.modified, 1)
	assert.Equal(t, modifyCall{userID: "u1", productID: "p1", action: order.ActionAdd, quantity: 2}, cart.modified[0])
}

func TestModifyItem_BadRequest(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"productId":`},
		{name: "missing product", body: `{"action":"add","quantity":1}`},
		{name: "unknown action", body: `{"productId":"p1","action":"double","quantity":1}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cart := &fakeCart{order: pendingOrder()}
			w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodPost, "/api/cart/items", tc.body, cartHeaders())
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, cart.modified)
			assert.Equal(t, http.StatusBadRequest, decodeError(t, w).Code)
		})
	}
}

func TestRemoveItem(t *testing.T) {
	cart := &fakeCart{order: pendingOrder()}
	w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodDelete, "/api/cart/items/p9", "", cartHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, cart.modified, 1)
	assert.Equal(t, "p9", cart.modified[0].productID)
	assert.Equal(t, order.ActionRemoveAll, cart.modified[0].action)
}

func TestApplyPromo(t *testing.T) {
	cart := &fakeCart{order: pendingOrder()}
	w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodPost, "/api/cart/promo", `{"code":"SAVE20"}`, cartHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SAVE20", cart.code)
}

func TestErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "promo not found", err: promo.ErrNotFound, status: http.StatusNotFound},
		{name: "cart empty", err: order.ErrCartEmpty, status: http.StatusNotFound},
		{name: "product not found", err: &order.ProductNotFoundError{ProductID: "p1"}, status: http.StatusNotFound},
		{name: "status", err: &order.StatusError{OrderID: "o1", Status: order.StatusConfirmed}, status: http.StatusBadRequest},
		{name: "validation", err: apperr.Validation("quantity", "must be positive"), status: http.StatusBadRequest},
		{name: "conflict", err: order.ErrConcurrentUpdate, status: http.StatusConflict},
		{name: "internal", err: errors.New("pq: connection refused"), status: http.StatusInternalServerError, message: "internal error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cart := &fakeCart{err: tc.err}
			w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodPost, "/api/cart/confirm", "", cartHeaders())

			require.Equal(t, tc.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tc.status, resp.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, resp.Message)
			} else {
				assert.Equal(t, tc.err.Error(), resp.Message)
			}
		})
	}
}

func TestClearCart(t *testing.T) {
	cleared := &order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending, Total: decimal.Zero}
	w := serve(t, NewHandler(&fakeCart{order: cleared}, &fakePromos{}, fakeAuth{}), http.MethodDelete, "/api/cart", "", cartHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	var resp orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0.00", resp.Total)
	assert.Empty(t, resp.Items)
	assert.Empty(t, resp.PromoID)
}

func TestListOrders(t *testing.T) {
	confirmedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cart := &fakeCart{orders: []order.Order{
		{ID: "o2", Status: order.StatusConfirmed, Total: decimal.RequireFromString("10.5"), ConfirmedAt: &confirmedAt},
		{ID: "o1", Status: order.StatusConfirmed, Total: decimal.RequireFromString("3"), ConfirmedAt: &confirmedAt},
	}}
	w := serve(t, NewHandler(cart, &fakePromos{}, fakeAuth{}), http.MethodGet, "/api/orders", "", cartHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	var resp []orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "o2", resp[0].ID)
	assert.Equal(t, "10.50", resp[0].Total)
	require.NotNil(t, resp[0].ConfirmedAt)

	w = serve(t, NewHandler(&fakeCart{err: order.ErrNoConfirmedOrders}, &fakePromos{}, fakeAuth{}), http.MethodGet, "/api/orders", "", cartHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminPromos(t *testing.T) {
	admin := map[string]string{HeaderAPIKey: adminKey}

	t.Run("create", func(t *testing.T) {
		promos := &fakePromos{}
		w := serve(t, NewHandler(&fakeCart{}, promos, fakeAuth{}), http.MethodPost, "/api/admin/promos", `{"code":"SAVE10","discountPercent":10}`, admin)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp promoResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SAVE10", resp.Code)
		assert.Equal(t, 10, resp.DiscountPercent)
		assert.True(t, resp.Available)
	})
	t.Run("create duplicate", func(t *testing.T) {
		promos := &fakePromos{err: promo.ErrCodeExists}
		w := serve(t, NewHandler(&fakeCart{}, promos, fakeAuth{}), http.MethodPost, "/api/admin/promos", `{"code":"SAVE10","discountPercent":10}`, admin)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
	t.Run("delete", func(t *testing.T) {
		promos := &fakePromos{}
		w := serve(t, NewHandler(&fakeCart{}, promos, fakeAuth{}), http.MethodDelete, "/api/admin/promos/pr1", "", admin)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "pr1", promos.deleted)
	})
	t.Run("delete missing", func(t *testing.T) {
		promos := &fakePromos{err: promo.ErrNotFound}
		w := serve(t, NewHandler(&fakeCart{}, promos, fakeAuth{}), http.MethodDelete, "/api/admin/promos/nope", "", admin)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("list", func(t *testing.T) {
		promos := &fakePromos{list: []promo.Promo{{ID: "pr1", Code: "A"}, {ID: "pr2", Code: "B"}}}
		w := serve(t, NewHandler(&fakeCart{}, promos, fakeAuth{}), http.MethodGet, "/api/admin/promos", "", admin)

		require.Equal(t, http.StatusOK, w.Code)
		var resp []promoResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})
}

func TestNoRoute(t *testing.T) {
	w := serve(t, NewHandler(&fakeCart{}, &fakePromos{}, fakeAuth{}), http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
