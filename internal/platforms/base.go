package platforms

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"
)

// ClientOptions tune the HTTP client an adapter talks to its platform with.
// Zero values fall back to httpclient defaults.
type ClientOptions struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RateLimitDelay time.Duration // overrides the platform's declared spacing when set
	HTTPClient     *http.Client
	Clock          clock.Clock
}

// Base carries the parts every adapter shares: settings, one rate-limited
// HTTP client per platform, and OAuth delegation to the manager.
// Adapters embed it and implement the platform-specific methods.
type Base struct {
	settings Settings
	client   *httpclient.Client
	oauth    *oauth.Manager
	logger   *slog.Logger
}

// NewBase creates the shared adapter state
func NewBase(settings Settings, manager *oauth.Manager, opts ClientOptions, logger *slog.Logger) Base {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("platform", settings.Key)

	spacing := settings.Capabilities.RateLimitDelay
	if opts.RateLimitDelay != 0 {
		spacing = opts.RateLimitDelay
	}

	client := httpclient.New(httpclient.Options{
		BaseURL:        settings.BaseURL,
		RateLimitDelay: spacing,
		Timeout:        opts.Timeout,
		MaxRetries:     opts.MaxRetries,
		RetryBaseDelay: opts.RetryBaseDelay,
		HTTPClient:     opts.HTTPClient,
		Clock:          opts.Clock,
		Logger:         logger,
	})
	if settings.APIKeyHeader != "" && settings.APIKey != "" {
		client.SetAPIKey(settings.APIKeyHeader, settings.APIKey)
	}

	return Base{
		settings: settings,
		client:   client,
		oauth:    manager,
		logger:   logger,
	}
}

// Settings returns the platform descriptor
func (b *Base) Settings() Settings {
	return b.settings
}

// Client returns the platform's HTTP client
func (b *Base) Client() *httpclient.Client {
	return b.client
}

// Logger returns the platform-scoped logger
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// AuthURL starts an authorization flow with the platform's OAuth settings
func (b *Base) AuthURL(ctx context.Context, opts oauth.BeginOptions) (*oauth.Authorization, error) {
	if !b.settings.RequiresOAuth() || b.oauth == nil {
		return nil, ErrOAuthNotSupported
	}
	if b.settings.OAuth.UsePKCE {
		opts.UsePKCE = true
	}
	return b.oauth.BeginAuthorization(ctx, b.settings.OAuth, opts)
}

// ExchangeCode completes an authorization flow
func (b *Base) ExchangeCode(ctx context.Context, code, state, userID string) *oauth.ExchangeResult {
	if !b.settings.RequiresOAuth() || b.oauth == nil {
		return &oauth.ExchangeResult{Error: httpclient.NewError(httpclient.CodeBadRequest, ErrOAuthNotSupported.Error())}
	}
	return b.oauth.CompleteAuthorization(ctx, b.settings.OAuth, code, state, userID)
}

// RefreshTokens refreshes a user's platform credentials
func (b *Base) RefreshTokens(ctx context.Context, refreshToken string) *oauth.RefreshResult {
	if !b.settings.RequiresOAuth() || b.oauth == nil {
		return &oauth.RefreshResult{Error: httpclient.NewError(httpclient.CodeBadRequest, ErrOAuthNotSupported.Error())}
	}
	return b.oauth.Refresh(ctx, b.settings.OAuth, refreshToken)
}

// AuthHeader returns per-request auth headers for a user's tokens.
// The shared client is used by many users, so user tokens are never set on it.
func (b *Base) AuthHeader(tokens *core.StoredTokens) http.Header {
	h := http.Header{"Accept": {"application/json"}}
	if tokens == nil || tokens.AccessToken == "" {
		return h
	}
	tokenType := tokens.TokenType
	if tokenType == "" || tokenType == "bearer" {
		tokenType = "Bearer"
	}
	h.Set("Authorization", tokenType+" "+tokens.AccessToken)
	return h
}

// RequireTokens returns UNAUTHORIZED when an OAuth platform has no usable tokens
func (b *Base) RequireTokens(tokens *core.StoredTokens) error {
	if !b.settings.RequiresOAuth() {
		return nil
	}
	if tokens == nil || tokens.AccessToken == "" {
		return httpclient.NewError(httpclient.CodeUnauthorized, "platform account not connected")
	}
	return nil
}
