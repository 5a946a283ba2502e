package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hypertoken/internal/repository"
	"hypertoken/internal/service"
)

// apiResponse is the envelope of every /api reply. Code is 0 on success and
// the HTTP status otherwise.
type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Message: "ok", Data: data, Meta: meta})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{Code: status, Message: message, Meta: meta})
}

// Fail replies with the status errorStatus picks for err.
func Fail(c *gin.Context, err error) {
	Error(c, errorStatus(err), err.Error(), nil)
}

// errorStatus maps service and store errors onto HTTP statuses. Anything
// unrecognised is an upstream failure.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrCycleInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func totalMeta(total int64, cached bool) map[string]any {
	return map[string]any{
		"total":  total,
		"cached": cached,
	}
}
