package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hypertoken/internal/service"
)

// Triggerer runs one sync cycle on demand.
type Triggerer interface {
	Trigger(ctx context.Context) (service.CycleResult, error)
}

type TokenHandler struct {
	Sync   Triggerer
	Query  *service.TokenQueryService
	Logger *zap.Logger
}

func (h *TokenHandler) Register(r *gin.Engine) {
	group := r.Group("/api/tokens")
	group.GET("", h.listTokens)
	group.GET("/sync-state", h.listSyncState)
	group.GET("/:tokenIndex", h.getToken)
	group.POST("/refresh", h.refresh)
}

// @Summary Run a token sync cycle now
// @Tags tokens
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/tokens/refresh [post]
func (h *TokenHandler) refresh(c *gin.Context) {
	if h.Sync == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Sync.Trigger(c.Request.Context())
	if err != nil {
		if !errors.Is(err, service.ErrCycleInProgress) {
			h.warn("token refresh failed", err)
		}
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

// @Summary List all tokens
// @Tags tokens
// @Success 200 {object} apiResponse
// @Router /api/tokens [get]
func (h *TokenHandler) listTokens(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Query.ListTokens(c.Request.Context())
	if err != nil {
		h.warn("list tokens failed", err)
		Fail(c, err)
		return
	}
	Ok(c, result.Items, totalMeta(result.Total, result.Cached))
}

// @Summary Get one token
// @Tags tokens
// @Param tokenIndex path int true "token index"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/tokens/{tokenIndex} [get]
func (h *TokenHandler) getToken(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	idx, err := strconv.Atoi(c.Param("tokenIndex"))
	if err != nil {
		Error(c, http.StatusBadRequest, "tokenIndex must be an integer", nil)
		return
	}
	item, err := h.Query.Repo.GetTokenByIndex(c.Request.Context(), idx)
	if err != nil {
		h.warn("get token failed", err)
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "token not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List sync states
// @Tags tokens
// @Success 200 {object} apiResponse
// @Router /api/tokens/sync-state [get]
func (h *TokenHandler) listSyncState(c *gin.Context) {
	if h.Query == nil || h.Query.Repo == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	states, err := h.Query.ListSyncStates(c.Request.Context())
	if err != nil {
		h.warn("list sync state failed", err)
		Fail(c, err)
		return
	}
	Ok(c, states, nil)
}

func (h *TokenHandler) warn(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
}
