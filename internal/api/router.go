package api

import (
	"log/slog"

	"listingsync/internal/api/handlers"
	"listingsync/internal/api/middleware"
	"listingsync/internal/publish"
	"listingsync/internal/storage"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Publisher          publish.Publisher
	Storage            storage.Storage
	Registry           handlers.PlatformRegistry
	Revoker            handlers.Revoker
	APIKey             string
	ReturnURLBase      string // front-end origin that OAuth return URLs must match
	RateLimitPerMinute int
	Logger             *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Logging must run before NoiseFilter so it sees skip_logging
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.NoiseFilter(config.Logger))
	router.Use(middleware.NewRateLimiter(config.RateLimitPerMinute).Handler())
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Registry)
	router.GET("/health", healthHandler.GetHealth)

	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(config.APIKey))
	{
		// Platform catalogue
		platformsHandler := handlers.NewPlatformsHandler(config.Registry, config.Logger)
		v1.GET("/platforms", platformsHandler.ListPlatforms)
		v1.GET("/platforms/:platform/diagnostics", platformsHandler.GetDiagnostics)

		// Account connections
		connectionsHandler := handlers.NewConnectionsHandler(
			config.Registry,
			config.Storage,
			config.Revoker,
			config.ReturnURLBase,
			config.Logger,
		)
		v1.POST("/platforms/:platform/authorize", connectionsHandler.Authorize)
		v1.GET("/platforms/:platform/callback", connectionsHandler.Callback)
		v1.GET("/platforms/:platform/connection", connectionsHandler.GetConnection)
		v1.DELETE("/platforms/:platform/connection", connectionsHandler.DeleteConnection)

		// Publications
		publicationsHandler := handlers.NewPublicationsHandler(config.Publisher, config.Logger)
		v1.POST("/publications/bulk", publicationsHandler.BulkPublish)
		v1.GET("/publications", publicationsHandler.ListPublications)
		v1.GET("/publications/:id", publicationsHandler.GetPublication)
		v1.PUT("/publications/:id", publicationsHandler.UpdatePublication)
		v1.DELETE("/publications/:id", publicationsHandler.DeletePublication)
		v1.POST("/publications/:id/pause", publicationsHandler.PausePublication)
		v1.POST("/publications/:id/resume", publicationsHandler.ResumePublication)
		v1.POST("/publications/:id/sync", publicationsHandler.SyncPublication)

		// Development property upserts
		propertiesHandler := handlers.NewPropertiesHandler(config.Storage, config.Logger)
		v1.PUT("/properties/:id", propertiesHandler.PutProperty)
		v1.GET("/properties/:id", propertiesHandler.GetProperty)
	}

	return router
}
