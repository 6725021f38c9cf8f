package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"listingsync/internal/api/middleware"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"
	"listingsync/internal/storage"

	"github.com/gin-gonic/gin"
)

// Revoker revokes tokens at the provider
type Revoker interface {
	Revoke(ctx context.Context, cfg oauth.Config, tokens *core.StoredTokens)
}

// ConnectionsHandler manages users' platform account connections
type ConnectionsHandler struct {
	registry      PlatformRegistry
	tokens        storage.TokenStore
	revoker       Revoker
	returnURLBase *url.URL
	logger        *slog.Logger
}

// NewConnectionsHandler creates a new connections handler. Return URLs must
// share the scheme and host of returnURLBase; when it is empty or does not
// parse, no return URL is accepted.
func NewConnectionsHandler(registry PlatformRegistry, tokens storage.TokenStore, revoker Revoker, returnURLBase string, logger *slog.Logger) *ConnectionsHandler {
	h := &ConnectionsHandler{
		registry: registry,
		tokens:   tokens,
		revoker:  revoker,
		logger:   logger,
	}
	if base, err := url.Parse(returnURLBase); err == nil && base.Scheme != "" && base.Host != "" {
		h.returnURLBase = base
	}
	return h
}

// allowedReturnURL reports whether raw points at the configured front-end origin
func (h *ConnectionsHandler) allowedReturnURL(raw string) bool {
	if h.returnURLBase == nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, h.returnURLBase.Scheme) && strings.EqualFold(u.Host, h.returnURLBase.Host)
}

// Authorize starts an OAuth flow and returns the provider URL
// POST /v1/platforms/:platform/authorize
func (h *ConnectionsHandler) Authorize(c *gin.Context) {
	var req struct {
		ReturnURL string `json:"returnUrl" binding:"omitempty,url"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.ReturnURL != "" && !h.allowedReturnURL(req.ReturnURL) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "returnUrl must point at the application origin",
			"code":  "INVALID_RETURN_URL",
		})
		return
	}

	adapter, err := h.registry.Get(c.Param("platform"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	auth, err := adapter.AuthURL(c.Request.Context(), oauth.BeginOptions{
		UserID:    middleware.UserID(c),
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authUrl":   auth.URL,
		"state":     auth.State,
		"expiresAt": auth.ExpiresAt.Format(time.RFC3339),
	})
}

// Callback completes an OAuth flow and stores the user's tokens.
// The browser is sent back to the flow's return URL when one was given.
// GET /v1/platforms/:platform/callback?code=&state=
func (h *ConnectionsHandler) Callback(c *gin.Context) {
	platform := c.Param("platform")
	userID := middleware.UserID(c)

	if denied := c.Query("error"); denied != "" {
		message := c.Query("error_description")
		if message == "" {
			message = denied
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": message,
			"code":  "AUTHORIZATION_DENIED",
		})
		return
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "code and state are required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	adapter, err := h.registry.Get(platform)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result := adapter.ExchangeCode(c.Request.Context(), code, state, userID)
	if result.ReturnURL != "" && !h.allowedReturnURL(result.ReturnURL) {
		h.logger.Warn("Dropping return URL outside the application origin",
			"component", "api",
			"platform", platform,
			"user_id", userID)
		result.ReturnURL = ""
	}
	if !result.Success {
		if result.Error == nil {
			result.Error = httpclient.NewError(httpclient.CodeUnknown, "authorization failed")
		}
		if result.ReturnURL != "" {
			c.Redirect(http.StatusFound, withQuery(result.ReturnURL, "error", string(result.Error.Code)))
			return
		}
		respondError(c, h.logger, result.Error)
		return
	}

	if err := h.tokens.SaveTokens(c.Request.Context(), result.Tokens); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result.ReturnURL != "" {
		c.Redirect(http.StatusFound, withQuery(result.ReturnURL, "connected", platform))
		return
	}
	c.JSON(http.StatusOK, formatConnectionResponse(platform, result.Tokens))
}

// GetConnection reports whether the user is connected to a platform
// GET /v1/platforms/:platform/connection
func (h *ConnectionsHandler) GetConnection(c *gin.Context) {
	platform := c.Param("platform")
	if _, err := h.registry.Get(platform); err != nil {
		respondError(c, h.logger, err)
		return
	}

	tokens, err := h.tokens.GetTokens(c.Request.Context(), middleware.UserID(c), platform)
	if errors.Is(err, core.ErrTokensNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"platform":  platform,
			"connected": false,
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, formatConnectionResponse(platform, tokens))
}

// DeleteConnection revokes and forgets the user's tokens for a platform
// DELETE /v1/platforms/:platform/connection
func (h *ConnectionsHandler) DeleteConnection(c *gin.Context) {
	platform := c.Param("platform")
	userID := middleware.UserID(c)

	adapter, err := h.registry.Get(platform)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	tokens, err := h.tokens.GetTokens(ctx, userID, platform)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.revoker.Revoke(ctx, adapter.Settings().OAuth, tokens)

	if err := h.tokens.DeleteTokens(ctx, userID, platform); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Platform disconnected",
		"component", "api",
		"platform", platform,
		"user_id", userID,
	)
	c.Status(http.StatusNoContent)
}

func formatConnectionResponse(platform string, tokens *core.StoredTokens) gin.H {
	resp := gin.H{
		"platform":  platform,
		"connected": tokens.Valid,
		"issuedAt":  tokens.IssuedAt.Format(time.RFC3339),
	}
	if tokens.ExpiresAt != nil {
		resp["expiresAt"] = tokens.ExpiresAt.Format(time.RFC3339)
	}
	if tokens.AccountName != "" {
		resp["accountName"] = tokens.AccountName
	}
	if tokens.AccountEmail != "" {
		resp["accountEmail"] = tokens.AccountEmail
	}
	return resp
}

// withQuery appends key=value to raw, leaving raw untouched if it does not parse
func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
