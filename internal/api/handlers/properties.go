package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"listingsync/internal/api/middleware"
	"listingsync/internal/core"
	"listingsync/internal/storage"

	"github.com/gin-gonic/gin"
)

// PropertiesHandler writes property records for local development. In
// production the records are owned by another service.
type PropertiesHandler struct {
	properties storage.PropertyStore
	logger     *slog.Logger
}

// NewPropertiesHandler creates a new properties handler
func NewPropertiesHandler(properties storage.PropertyStore, logger *slog.Logger) *PropertiesHandler {
	return &PropertiesHandler{
		properties: properties,
		logger:     logger,
	}
}

// PutProperty creates or replaces a property owned by the caller
// PUT /v1/properties/:id
func (h *PropertiesHandler) PutProperty(c *gin.Context) {
	var property core.Property
	if err := c.ShouldBindJSON(&property); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	property.ID = c.Param("id")
	property.UserID = userID
	property.UpdatedAt = time.Now().UTC()

	existing, err := h.properties.GetProperty(ctx, property.ID)
	switch {
	case err == nil && existing.UserID != userID:
		respondError(c, h.logger, core.ErrPropertyNotFound)
		return
	case err != nil && !errors.Is(err, core.ErrPropertyNotFound):
		respondError(c, h.logger, err)
		return
	}

	if err := h.properties.UpsertProperty(ctx, &property); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, property)
}

// GetProperty returns a property owned by the caller
// GET /v1/properties/:id
func (h *PropertiesHandler) GetProperty(c *gin.Context) {
	property, err := h.properties.GetProperty(c.Request.Context(), c.Param("id"))
	if err == nil && property.UserID != middleware.UserID(c) {
		err = core.ErrPropertyNotFound
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, property)
}
