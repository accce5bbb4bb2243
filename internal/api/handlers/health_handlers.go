package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/database"
)

// HealthHandlers exposes liveness and readiness probes
type HealthHandlers struct {
	db        *sqlx.DB
	startedAt time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(db *sqlx.DB) *HealthHandlers {
	return &HealthHandlers{db: db, startedAt: time.Now()}
}

// Health is the liveness probe
// GET /health
func (h *HealthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Ready is the readiness probe; it fails when the database is unreachable
// GET /ready
func (h *HealthHandlers) Ready(c *gin.Context) {
	if err := database.HealthCheck(h.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
