package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddevcap/seatgrid/upstream"
)

type SystemHandler struct {
	health *upstream.HealthChecker
}

// NewSystemHandler creates the probe handlers. health may be nil, in which
// case the service always reports ready.
func NewSystemHandler(health *upstream.HealthChecker) *SystemHandler {
	return &SystemHandler{health: health}
}

// HealthLive handles GET /health and always returns 200.
// Used as a liveness probe by container orchestrators.
func (h *SystemHandler) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthReady handles GET /ready and reports whether the booking provider is
// reachable. Returns 503 once the upstream has been marked unavailable.
func (h *SystemHandler) HealthReady(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	st := h.health.Status()
	if !st.Available {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "upstream": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "upstream": st})
}
