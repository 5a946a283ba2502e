package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterDocs serves a short route overview at /docs.
func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Hypertoken

Token metadata for Hyperliquid spot tokens, kept current by a background sync.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- GET /api/tokens
- GET /api/tokens/{tokenIndex}
- GET /api/tokens/sync-state
- POST /api/tokens/refresh (409 while a cycle is running)

## Sync

A cycle lists every spot token, fetches its details and upserts one record per
token index. Curated fields (team allocation, airdrops, due-diligence flags,
links, comments) are never overwritten once set. Cycles run at start, then on
the cron.token_sync cadence.
`)
	})
}
