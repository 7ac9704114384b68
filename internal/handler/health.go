package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"creditguild/internal/state"
)

const headCheckTimeout = 3 * time.Second

type HealthHandler struct {
	DB    *gorm.DB
	State *state.Store
	// Head reports the chain head; nil when no RPC is configured.
	Head func(ctx context.Context) (uint64, error)
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Description Ready once the database and chain RPC (when configured) answer and at least one market has state.
// @Tags health
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	markets := 0
	if h.State != nil {
		markets = len(h.State.MarketIDs())
	}
	if h.DB != nil {
		sqlDB, err := h.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
			return
		}
	}
	if markets == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no_markets"})
		return
	}
	resp := gin.H{"status": "ready", "markets": markets, "db": h.DB != nil}
	if h.Head != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), headCheckTimeout)
		defer cancel()
		head, err := h.Head(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "chain_unreachable", "error": err.Error()})
			return
		}
		resp["head_block"] = head
	}
	c.JSON(http.StatusOK, resp)
}
