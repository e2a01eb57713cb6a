package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

const (
	// HeaderAPIKey carries the raw API key.
	HeaderAPIKey = "api_key"
	// HeaderUserID carries the caller identity asserted by the gateway.
	HeaderUserID = "X-User-ID"

	userIDKey = "user_id"
)

// requireScope authenticates the api_key header and rejects keys without
// scope.
func (h *Handler) requireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		info, err := h.auth.Authenticate(ctx, c.GetHeader(HeaderAPIKey), scope)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrUnauthorized):
			abortError(c, http.StatusUnauthorized, "unauthorized")
			return
		case errors.Is(err, auth.ErrForbidden):
			abortError(c, http.StatusForbidden, "forbidden")
			return
		default:
			zctx.From(ctx).Error("Authenticate", zap.Error(err))
			abortError(c, http.StatusInternalServerError, "internal error")
			return
		}

		c.Request = c.Request.WithContext(zctx.With(ctx, zap.String("api_key", info.Name)))
		c.Next()
	}
}

// requireUser reads the caller identity from X-User-ID.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			abortError(c, http.StatusBadRequest, "missing "+HeaderUserID+" header")
			return
		}
		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(zctx.With(c.Request.Context(), zap.String("user_id", userID)))
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
