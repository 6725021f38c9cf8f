package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"

	"golang.org/x/oauth2"
)

const (
	DefaultFlowTTL       = 15 * time.Minute
	DefaultSweepInterval = 5 * time.Minute

	// ExpiryBuffer is how long before expiry a token stops counting as valid
	ExpiryBuffer = 5 * time.Minute
)

// Config is a platform's OAuth client configuration
type Config struct {
	Platform     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	RevokeURL    string
	UserInfoURL  string
	RedirectURI  string
	UsePKCE      bool
	Required     bool
}

// Configured reports whether client credentials are present
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// BeginOptions are the per-attempt inputs to BeginAuthorization
type BeginOptions struct {
	UserID    string
	ReturnURL string
	UsePKCE   bool
}

// Authorization is the URL the browser should be sent to
type Authorization struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// ExchangeResult is the outcome of a code exchange. Failures are reported
// in Error rather than returned so callers can show the provider's reason.
type ExchangeResult struct {
	Success   bool
	Tokens    *core.StoredTokens
	ReturnURL string
	Error     *httpclient.APIError
}

// RefreshResult is the outcome of a refresh; Update holds only changed fields
type RefreshResult struct {
	Success bool
	Update  *core.TokenUpdate
	Error   *httpclient.APIError
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Store   FlowStore
	Client  *httpclient.Client
	Clock   clock.Clock
	FlowTTL time.Duration
	Logger  *slog.Logger
}

// Manager runs authorization-code flows and token refreshes
type Manager struct {
	store   FlowStore
	client  *httpclient.Client
	clock   clock.Clock
	flowTTL time.Duration
	logger  *slog.Logger
}

// NewManager creates a new OAuth lifecycle manager
func NewManager(opts ManagerOptions) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryFlowStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = httpclient.New(httpclient.Options{Clock: opts.Clock, Logger: opts.Logger})
	}
	if opts.FlowTTL <= 0 {
		opts.FlowTTL = DefaultFlowTTL
	}

	return &Manager{
		store:   opts.Store,
		client:  opts.Client,
		clock:   opts.Clock,
		flowTTL: opts.FlowTTL,
		logger:  opts.Logger.With("component", "oauth"),
	}
}

// BeginAuthorization creates a flow and returns the provider's authorize URL
func (m *Manager) BeginAuthorization(ctx context.Context, cfg Config, opts BeginOptions) (*Authorization, error) {
	if cfg.AuthorizeURL == "" {
		return nil, fmt.Errorf("%s: authorize url not configured", cfg.Platform)
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	flow := &Flow{
		State:       state,
		Platform:    cfg.Platform,
		UserID:      opts.UserID,
		RedirectURI: cfg.RedirectURI,
		ReturnURL:   opts.ReturnURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.flowTTL),
	}

	var authOpts []oauth2.AuthCodeOption
	if opts.UsePKCE {
		flow.CodeVerifier = newCodeVerifier()
		authOpts = append(authOpts, oauth2.S256ChallengeOption(flow.CodeVerifier))
	}

	if err := m.store.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to store oauth flow: %w", err)
	}

	authURL := oauth2Config(cfg).AuthCodeURL(state, authOpts...)

	m.logger.Info("Authorization started",
		"platform", cfg.Platform,
		"user_id", opts.UserID,
		"pkce", opts.UsePKCE,
		"expires_at", flow.ExpiresAt)

	return &Authorization{URL: authURL, State: state, ExpiresAt: flow.ExpiresAt}, nil
}

// CompleteAuthorization consumes the flow for state and exchanges code for tokens
func (m *Manager) CompleteAuthorization(ctx context.Context, cfg Config, code, state, userID string) *ExchangeResult {
	flow, err := m.store.Take(ctx, state)
	if err != nil {
		if !errors.Is(err, ErrFlowNotFound) {
			m.logger.Error("Failed to load oauth flow", "platform", cfg.Platform, "error", err)
		}
		return failedExchange(httpclient.CodeInvalidState, "unknown or already used state")
	}
	if flow.Platform != cfg.Platform || (flow.UserID != "" && flow.UserID != userID) {
		return failedExchange(httpclient.CodeInvalidState, "state does not belong to this connection")
	}
	now := m.clock.Now()
	if flow.Expired(now) {
		return failedExchange(httpclient.CodeFlowExpired, "authorization flow expired")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", flow.RedirectURI)
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}
	if flow.CodeVerifier != "" {
		form.Set("code_verifier", flow.CodeVerifier)
	}

	token, apiErr := m.tokenRequest(ctx, cfg, form)
	if apiErr != nil {
		m.logger.Warn("Code exchange failed", "platform", cfg.Platform, "user_id", userID, "code", apiErr.Code, "error", apiErr.Message)
		return &ExchangeResult{Error: apiErr, ReturnURL: flow.ReturnURL}
	}

	tokens := &core.StoredTokens{
		UserID:       userID,
		Platform:     cfg.Platform,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        token.Scope,
		ExpiresAt:    token.expiresAt(now),
		IssuedAt:     now,
		Valid:        true,
	}
	if tokens.TokenType == "" {
		tokens.TokenType = "Bearer"
	}

	if cfg.UserInfoURL != "" {
		m.enrichIdentity(ctx, cfg, tokens)
	}

	m.logger.Info("Authorization completed",
		"platform", cfg.Platform,
		"user_id", userID,
		"expires_at", tokens.ExpiresAt,
		"has_refresh_token", tokens.RefreshToken != "")

	return &ExchangeResult{Success: true, Tokens: tokens, ReturnURL: flow.ReturnURL}
}

// Refresh exchanges a refresh token for a new access token
func (m *Manager) Refresh(ctx context.Context, cfg Config, refreshToken string) *RefreshResult {
	if refreshToken == "" {
		return &RefreshResult{Error: httpclient.NewError(httpclient.CodeUnauthorized, "no refresh token available")}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	token, apiErr := m.tokenRequest(ctx, cfg, form)
	if apiErr != nil {
		m.logger.Warn("Token refresh failed", "platform", cfg.Platform, "code", apiErr.Code, "error", apiErr.Message)
		return &RefreshResult{Error: apiErr}
	}

	now := m.clock.Now()
	update := &core.TokenUpdate{
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		TokenType:       token.TokenType,
		ExpiresAt:       token.expiresAt(now),
		LastRefreshedAt: now,
	}
	if update.RefreshToken == "" {
		update.RefreshToken = refreshToken
	}

	m.logger.Debug("Token refreshed", "platform", cfg.Platform, "expires_at", update.ExpiresAt)
	return &RefreshResult{Success: true, Update: update}
}

// IsValid reports whether tokens can be used now: an access token is
// present, the validity flag is set, and expiry (if any) is more than
// ExpiryBuffer away.
func (m *Manager) IsValid(tokens *core.StoredTokens) bool {
	return IsValidAt(tokens, m.clock.Now())
}

// IsValidAt is IsValid evaluated at now
func IsValidAt(tokens *core.StoredTokens, now time.Time) bool {
	if tokens == nil || tokens.AccessToken == "" || !tokens.Valid {
		return false
	}
	if tokens.ExpiresAt == nil {
		return true
	}
	return now.Add(ExpiryBuffer).Before(*tokens.ExpiresAt)
}

// Revoke asks the provider to revoke tokens. Failures are logged, never returned.
func (m *Manager) Revoke(ctx context.Context, cfg Config, tokens *core.StoredTokens) {
	if cfg.RevokeURL == "" || tokens == nil {
		return
	}

	token := tokens.RefreshToken
	hint := "refresh_token"
	if token == "" {
		token = tokens.AccessToken
		hint = "access_token"
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", hint)
	form.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	_, err := m.client.Do(ctx, httpclient.RequestConfig{
		URL:        cfg.RevokeURL,
		Method:     http.MethodPost,
		Body:       form,
		MaxRetries: httpclient.NoRetries,
	})
	if err != nil {
		m.logger.Warn("Token revocation failed",
			"platform", cfg.Platform,
			"user_id", tokens.UserID,
			"error", err)
		return
	}
	m.logger.Info("Tokens revoked", "platform", cfg.Platform, "user_id", tokens.UserID)
}

// Sweep deletes all expired flows
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	removed, err := m.store.DeleteExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep oauth flows: %w", err)
	}
	if removed > 0 {
		m.logger.Debug("Expired oauth flows removed", "count", removed)
	}
	return removed, nil
}

// RunSweeper sweeps expired flows every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Error("Flow sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// tokenResponse is a token endpoint response. expires_in arrives as a
// number from most providers and as a string from some.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	Scope        string      `json:"scope"`
	ExpiresIn    json.Number `json:"expires_in"`
}

func (t *tokenResponse) expiresAt(now time.Time) *time.Time {
	if t.ExpiresIn == "" {
		return nil
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(t.ExpiresIn.String()), 10, 64)
	if err != nil || seconds <= 0 {
		return nil
	}
	at := now.Add(time.Duration(seconds) * time.Second)
	return &at
}

func (m *Manager) tokenRequest(ctx context.Context, cfg Config, form url.Values) (*tokenResponse, *httpclient.APIError) {
	if cfg.TokenURL == "" {
		return nil, httpclient.NewError(httpclient.CodeBadRequest, "token url not configured")
	}

	resp, err := m.client.Do(ctx, httpclient.RequestConfig{
		URL:    cfg.TokenURL,
		Method: http.MethodPost,
		Header: http.Header{"Accept": {"application/json"}},
		Body:   form,
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	var token tokenResponse
	if len(resp.Body) > 0 {
		if err := resp.Decode(&token); err != nil {
			return nil, &httpclient.APIError{Code: httpclient.CodeUnknown, Message: err.Error(), Status: resp.StatusCode}
		}
	}
	if token.AccessToken == "" {
		return nil, httpclient.NewError(httpclient.CodeNoAccessToken, "token response did not include an access token")
	}
	return &token, nil
}

func (m *Manager) enrichIdentity(ctx context.Context, cfg Config, tokens *core.StoredTokens) {
	resp, err := m.client.Do(ctx, httpclient.RequestConfig{
		URL: cfg.UserInfoURL,
		Header: http.Header{
			"Authorization": {"Bearer " + tokens.AccessToken},
			"Accept":        {"application/json"},
		},
		MaxRetries: httpclient.NoRetries,
	})
	if err != nil {
		m.logger.Warn("Failed to load platform account identity", "platform", cfg.Platform, "error", err)
		return
	}

	info, ok := resp.JSON.(map[string]any)
	if !ok {
		return
	}
	tokens.AccountName = firstString(info, "name", "displayName", "username")
	tokens.AccountEmail = firstString(info, "email", "mail")
}

func oauth2Config(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

func failedExchange(code httpclient.Code, message string) *ExchangeResult {
	return &ExchangeResult{Error: httpclient.NewError(code, message)}
}

func asAPIError(err error) *httpclient.APIError {
	if apiErr, ok := httpclient.AsAPIError(err); ok {
		return apiErr
	}
	return &httpclient.APIError{Code: httpclient.CodeUnknown, Message: err.Error()}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
