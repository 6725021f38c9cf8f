package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"listingsync/config"
	"listingsync/internal/adapters"
	"listingsync/internal/adapters/homefeed"
	"listingsync/internal/adapters/rentboard"
	"listingsync/internal/clock"
	"listingsync/internal/httpclient"
	"listingsync/internal/logging"
	"listingsync/internal/markup"
	"listingsync/internal/oauth"
	"listingsync/internal/platforms"
	"listingsync/internal/publish"
	"listingsync/internal/storage/sqlite"

	"github.com/redis/go-redis/v9"
)

const (
	flowKeyPrefix = "listingsync:oauth:flow:"
	flowGrace     = 5 * time.Minute
)

// app holds the components shared by every subcommand
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *sqlite.SQLiteStorage
	redis        *redis.Client
	oauth        *oauth.Manager
	registry     *adapters.Registry
	orchestrator *publish.Orchestrator
	publisher    publish.Publisher
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
	slog.SetDefault(logger)

	logger.Info("Opening database", "path", cfg.Database.Path)
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	flows, err := a.flowStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	client := httpclient.New(httpclient.Options{
		Timeout:        cfg.HTTP.Timeout,
		MaxRetries:     maxRetries(cfg.HTTP.MaxRetries),
		RetryBaseDelay: cfg.HTTP.RetryBaseDelay,
		RateLimitDelay: httpclient.NoRateLimit,
		Logger:         logger,
	})
	a.oauth = oauth.NewManager(oauth.ManagerOptions{
		Store:   flows,
		Client:  client,
		FlowTTL: cfg.OAuth.FlowTTL,
		Logger:  logger,
	})

	a.registry = buildRegistry(cfg, a.oauth, logger)

	a.orchestrator = publish.New(store, a.registry, publish.Options{
		Workers:    cfg.Publish.Workers,
		QueueSize:  cfg.Publish.QueueSize,
		JobTimeout: cfg.Publish.JobTimeout,
		Logger:     logger,
	})
	a.publisher = logging.NewPublisherLogger(a.orchestrator, logger)

	return a, nil
}

// flowStore returns the Redis flow store when configured, so flows survive
// across instances, and the in-process store otherwise
func (a *app) flowStore() (oauth.FlowStore, error) {
	if !a.cfg.Redis.Enabled() {
		a.logger.Info("Using in-memory OAuth flow store")
		return oauth.NewMemoryFlowStore(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}

	a.logger.Info("Using Redis OAuth flow store", "addr", a.cfg.Redis.Addr)
	return oauth.NewRedisFlowStore(a.redis, flowKeyPrefix, flowGrace, clock.RealClock{}), nil
}

func buildRegistry(cfg *config.Config, manager *oauth.Manager, logger *slog.Logger) *adapters.Registry {
	renderer := markup.NewRenderer()
	clientOpts := platforms.ClientOptions{
		Timeout:        cfg.HTTP.Timeout,
		MaxRetries:     maxRetries(cfg.HTTP.MaxRetries),
		RetryBaseDelay: cfg.HTTP.RetryBaseDelay,
		RateLimitDelay: cfg.HTTP.RateLimitDelay,
	}

	registry := adapters.NewRegistry(logger)

	rb := cfg.Platform(rentboard.Key)
	registry.Register(rentboard.New(rentboard.Config{
		BaseURL:      rb.BaseURL,
		ClientID:     rb.ClientID,
		ClientSecret: rb.ClientSecret,
		RedirectURI:  cfg.RedirectURI(rentboard.Key),
		Client:       clientOpts,
	}, manager, renderer, logger))

	hf := cfg.Platform(homefeed.Key)
	registry.Register(homefeed.New(homefeed.Config{
		BaseURL: hf.BaseURL,
		APIKey:  hf.APIKey,
		Client:  clientOpts,
	}, renderer, logger))

	for _, d := range registry.Descriptors() {
		if !d.Available {
			missing, _ := registry.Validate(d.Key)
			logger.Warn("Platform not fully configured", "platform", d.Key, "missing", missing)
		}
	}

	return registry
}

// maxRetries maps the configured count onto httpclient, where zero means default
func maxRetries(n int) int {
	if n == 0 {
		return httpclient.NoRetries
	}
	return n
}

// Close drains queued publishes and releases connections
func (a *app) Close() {
	if a.orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Publish.JobTimeout)
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			a.logger.Error("Publish queue did not drain", "error", err)
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Failed to close redis client", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
}
