package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	pingDB    func() error
	pingCache func() error
}

func NewHealthHandler(pingDB, pingCache func() error) *HealthHandler {
	return &HealthHandler{pingDB: pingDB, pingCache: pingCache}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz checks the backing stores; the cache is best-effort so a redis
// outage only degrades the response body, not the status.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.pingDB != nil {
		if err := h.pingDB(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "db": "down"})
			return
		}
	}

	cacheStatus := "ok"
	if h.pingCache != nil {
		if err := h.pingCache(); err != nil {
			cacheStatus = "down"
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "cache": cacheStatus})
}
