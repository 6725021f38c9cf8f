package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness along with how many platforms are usable
type HealthHandler struct {
	registry PlatformRegistry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry PlatformRegistry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// GetHealth returns the health status of the service
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	registered, available := 0, 0
	if h.registry != nil {
		for _, d := range h.registry.Descriptors() {
			registered++
			if d.Available {
				available++
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"service": "listingsync",
		"platforms": gin.H{
			"registered": registered,
			"available":  available,
		},
	})
}
