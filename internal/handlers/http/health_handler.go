package http

import (
	"net/http"
	"time"

	"huddle/internal/core/services"
	"huddle/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	hub     *services.Hub
	checker *monitoring.HealthChecker
	started time.Time
}

func NewHealthHandler(hub *services.Hub, checker *monitoring.HealthChecker) *HealthHandler {
	return &HealthHandler{
		hub:     hub,
		checker: checker,
		started: time.Now(),
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health is liveness only: it never touches the store.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      monitoring.StatusHealthy,
		"timestamp":   time.Now().Unix(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"connections": h.hub.Connections.Count(),
		"online":      h.hub.Presence.Count(),
		"rooms":       h.hub.Rooms.RoomCount(),
	})
}

// Ready runs every check now. last_background carries what the periodic
// checks saw most recently, so a flapping store shows up even when this
// request happens to succeed.
func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":          status.Status,
		"timestamp":       status.Timestamp.Unix(),
		"checks":          status.Checks,
		"last_background": h.checker.LastResults(),
	})
}
