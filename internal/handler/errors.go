package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAlreadyExists, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidState, apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an error body. Internal errors are logged and
// answered with a generic message.
func respondError(c *gin.Context, err error) {
	status := statusOf(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, errorResponse{Code: status, Message: message})
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: status, Message: message})
}
