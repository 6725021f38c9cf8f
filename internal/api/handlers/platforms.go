package handlers

import (
	"log/slog"
	"net/http"

	"listingsync/internal/adapters"
	"listingsync/internal/platforms"

	"github.com/gin-gonic/gin"
)

// PlatformRegistry is the read side of the adapter registry
type PlatformRegistry interface {
	Get(key string) (platforms.Adapter, error)
	Descriptors() []adapters.Descriptor
	Validate(key string) ([]string, error)
}

// PlatformsHandler exposes the platform catalogue
type PlatformsHandler struct {
	registry PlatformRegistry
	logger   *slog.Logger
}

// NewPlatformsHandler creates a new platforms handler
func NewPlatformsHandler(registry PlatformRegistry, logger *slog.Logger) *PlatformsHandler {
	return &PlatformsHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListPlatforms returns every registered platform
// GET /v1/platforms
func (h *PlatformsHandler) ListPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Descriptors())
}

// GetDiagnostics lists configuration a platform is missing
// GET /v1/platforms/:platform/diagnostics
func (h *PlatformsHandler) GetDiagnostics(c *gin.Context) {
	key := c.Param("platform")

	missing, err := h.registry.Validate(key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"platform":  key,
		"available": len(missing) == 0,
		"missing":   missing,
	})
}
