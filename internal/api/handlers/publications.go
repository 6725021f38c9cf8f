package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"listingsync/internal/api/middleware"
	"listingsync/internal/core"
	"listingsync/internal/publish"
	"listingsync/internal/storage"

	"github.com/gin-gonic/gin"
)

// PublicationsHandler handles listing publication requests
type PublicationsHandler struct {
	publisher publish.Publisher
	logger    *slog.Logger
}

// NewPublicationsHandler creates a new publications handler
func NewPublicationsHandler(publisher publish.Publisher, logger *slog.Logger) *PublicationsHandler {
	return &PublicationsHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// BulkPublish queues every (property, platform) pair for publishing
// POST /v1/publications/bulk
func (h *PublicationsHandler) BulkPublish(c *gin.Context) {
	var req struct {
		PropertyIDs  []string          `json:"propertyIds" binding:"required,min=1,dive,required"`
		Platforms    []string          `json:"platforms" binding:"required,min=1,dive,required"`
		ListingData  *core.ListingData `json:"listingData"`
		ScheduledFor *time.Time        `json:"scheduledFor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.publisher.RequestBulkPublish(c.Request.Context(), publish.BulkRequest{
		UserID:       middleware.UserID(c),
		PropertyIDs:  req.PropertyIDs,
		Platforms:    req.Platforms,
		Listing:      req.ListingData,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ListPublications returns the user's publications
// GET /v1/publications?propertyId=&platform=&status=
func (h *PublicationsHandler) ListPublications(c *gin.Context) {
	filter := storage.PublicationFilter{
		UserID:     middleware.UserID(c),
		PropertyID: c.Query("propertyId"),
		Platform:   c.Query("platform"),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := core.ParsePublicationStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_STATUS",
			})
			return
		}
		filter.Status = status
	}

	pubs, err := h.publisher.ListPublications(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]gin.H, 0, len(pubs))
	for _, pub := range pubs {
		response = append(response, formatPublicationResponse(pub))
	}
	c.JSON(http.StatusOK, response)
}

// GetPublication returns a single publication
// GET /v1/publications/:id
func (h *PublicationsHandler) GetPublication(c *gin.Context) {
	pub, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatPublicationResponse(pub))
}

// UpdatePublication pushes new listing content to the platform. Without a
// body the listing is rebuilt from the stored property.
// PUT /v1/publications/:id
func (h *PublicationsHandler) UpdatePublication(c *gin.Context) {
	var req struct {
		ListingData *core.ListingData `json:"listingData"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	if _, ok := h.owned(c); !ok {
		return
	}

	pub, err := h.publisher.UpdatePublication(c.Request.Context(), c.Param("id"), req.ListingData)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, formatPublicationResponse(pub))
}

// PausePublication pauses an active publication
// POST /v1/publications/:id/pause
func (h *PublicationsHandler) PausePublication(c *gin.Context) {
	h.statusAction(c, h.publisher.Pause)
}

// ResumePublication reactivates a paused publication
// POST /v1/publications/:id/resume
func (h *PublicationsHandler) ResumePublication(c *gin.Context) {
	h.statusAction(c, h.publisher.Resume)
}

// SyncPublication polls the platform for the publication's current state
// POST /v1/publications/:id/sync
func (h *PublicationsHandler) SyncPublication(c *gin.Context) {
	h.statusAction(c, h.publisher.SyncPublication)
}

// DeletePublication removes the listing from the platform and forgets it
// DELETE /v1/publications/:id
func (h *PublicationsHandler) DeletePublication(c *gin.Context) {
	if _, ok := h.owned(c); !ok {
		return
	}
	if err := h.publisher.Unpublish(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type publicationAction func(ctx context.Context, id string) (*core.Publication, error)

func (h *PublicationsHandler) statusAction(c *gin.Context, action publicationAction) {
	if _, ok := h.owned(c); !ok {
		return
	}
	pub, err := action(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, formatPublicationResponse(pub))
}

// owned loads the publication named by :id and checks it belongs to the
// caller. Another user's publication is reported as not found.
func (h *PublicationsHandler) owned(c *gin.Context) (*core.Publication, bool) {
	pub, err := h.publisher.GetPublication(c.Request.Context(), c.Param("id"))
	if err == nil && pub.UserID != middleware.UserID(c) {
		err = core.ErrPublicationNotFound
	}
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	return pub, true
}

func formatPublicationResponse(pub *core.Publication) gin.H {
	resp := gin.H{
		"id":         pub.ID,
		"propertyId": pub.PropertyID,
		"platform":   pub.Platform,
		"status":     pub.Status,
		"title":      pub.Title,
		"rent":       pub.Rent,
		"createdAt":  pub.CreatedAt.Format(time.RFC3339),
		"updatedAt":  pub.UpdatedAt.Format(time.RFC3339),
	}
	if pub.ExternalID != "" {
		resp["externalId"] = pub.ExternalID
	}
	if pub.ExternalURL != "" {
		resp["externalUrl"] = pub.ExternalURL
	}
	if pub.AvailableDate != nil {
		resp["availableDate"] = pub.AvailableDate.Format(time.DateOnly)
	}
	if pub.PublishedAt != nil {
		resp["publishedAt"] = pub.PublishedAt.Format(time.RFC3339)
	}
	if pub.LastSyncAt != nil {
		resp["lastSyncAt"] = pub.LastSyncAt.Format(time.RFC3339)
	}
	if pub.ErrorCode != "" {
		resp["error"] = gin.H{
			"code":    pub.ErrorCode,
			"message": pub.ErrorMessage,
		}
	}
	return resp
}
