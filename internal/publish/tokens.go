package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"
	"listingsync/internal/platforms"
	"listingsync/internal/storage"

	"golang.org/x/sync/singleflight"
)

// TokenSource hands out usable platform tokens, refreshing them when they
// are about to expire. Concurrent refreshes for one (user, platform) share
// a single provider call.
type TokenSource struct {
	store  storage.TokenStore
	clock  clock.Clock
	group  singleflight.Group
	logger *slog.Logger
}

// NewTokenSource creates a token source backed by store
func NewTokenSource(store storage.TokenStore, clk clock.Clock, logger *slog.Logger) *TokenSource {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSource{
		store:  store,
		clock:  clk,
		logger: logger.With("component", "token_source"),
	}
}

// EnsureValid returns tokens the adapter can use for userID. Platforms that
// do not use OAuth get nil tokens and no error.
func (s *TokenSource) EnsureValid(ctx context.Context, userID string, adapter platforms.Adapter) (*core.StoredTokens, error) {
	settings := adapter.Settings()
	if !settings.RequiresOAuth() {
		return nil, nil
	}

	tokens, err := s.load(ctx, userID, settings.Key)
	if err != nil {
		return nil, err
	}
	if oauth.IsValidAt(tokens, s.clock.Now()) {
		return tokens, nil
	}
	if !tokens.Valid {
		return nil, httpclient.NewError(httpclient.CodeUnauthorized, "platform connection was revoked, reconnect required")
	}
	if tokens.RefreshToken == "" {
		return nil, httpclient.NewError(httpclient.CodeUnauthorized, "access token expired and no refresh token is available")
	}

	v, err, shared := s.group.Do(userID+"/"+settings.Key, func() (any, error) {
		return s.refresh(ctx, userID, adapter)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Joined in-flight token refresh", "user_id", userID, "platform", settings.Key)
	}

	refreshed := *v.(*core.StoredTokens)
	return &refreshed, nil
}

// Invalidate flags a connection as needing reconnection
func (s *TokenSource) Invalidate(ctx context.Context, userID, platform string) {
	if err := s.store.InvalidateTokens(ctx, userID, platform); err != nil && !errors.Is(err, core.ErrTokensNotFound) {
		s.logger.Error("Failed to invalidate tokens", "user_id", userID, "platform", platform, "error", err)
		return
	}
	s.logger.Info("Platform connection invalidated", "user_id", userID, "platform", platform)
}

func (s *TokenSource) refresh(ctx context.Context, userID string, adapter platforms.Adapter) (*core.StoredTokens, error) {
	platform := adapter.Settings().Key

	// A refresh that finished just before this flight started already stored new tokens
	tokens, err := s.load(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if oauth.IsValidAt(tokens, s.clock.Now()) {
		return tokens, nil
	}

	result := adapter.RefreshTokens(ctx, tokens.RefreshToken)
	if !result.Success {
		apiErr := result.Error
		if apiErr == nil {
			apiErr = httpclient.NewError(httpclient.CodeUnknown, "token refresh failed")
		}
		switch apiErr.Code {
		case httpclient.CodeUnauthorized, httpclient.CodeForbidden, httpclient.CodeBadRequest:
			// The grant is dead; only a new authorization will help
			s.Invalidate(ctx, userID, platform)
			return nil, &httpclient.APIError{
				Code:      httpclient.CodeUnauthorized,
				Status:    apiErr.Status,
				Message:   "token refresh rejected: " + apiErr.Message,
				Details:   apiErr.Details,
				Retryable: false,
			}
		}
		return nil, apiErr
	}

	tokens.Apply(*result.Update)
	if err := s.store.SaveTokens(ctx, tokens); err != nil {
		return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	s.logger.Info("Platform tokens refreshed",
		"user_id", userID,
		"platform", platform,
		"expires_at", tokens.ExpiresAt)
	return tokens, nil
}

func (s *TokenSource) load(ctx context.Context, userID, platform string) (*core.StoredTokens, error) {
	tokens, err := s.store.GetTokens(ctx, userID, platform)
	if errors.Is(err, core.ErrTokensNotFound) {
		return nil, httpclient.NewError(httpclient.CodeUnauthorized, "platform account not connected")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	return tokens, nil
}
