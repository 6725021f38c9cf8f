package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"listingsync/internal/adapters"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/platforms"
	"listingsync/internal/publish"

	"github.com/gin-gonic/gin"
)

// CodeReconnectRequired tells the client the user must reconnect the platform
const CodeReconnectRequired = "RECONNECT_REQUIRED"

// respondError maps err to a status code and writes the {error, code} body.
// Unclassified errors are logged and reported as internal errors.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			"component", "api",
			"path", c.FullPath(),
			"error", err,
		)
		message = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

func classify(err error) (int, string, string) {
	if apiErr, ok := httpclient.AsAPIError(err); ok {
		return classifyAPIError(apiErr)
	}

	switch {
	case errors.Is(err, core.ErrPublicationNotFound):
		return http.StatusNotFound, "PUBLICATION_NOT_FOUND", "Publication not found"
	case errors.Is(err, core.ErrPropertyNotFound):
		return http.StatusNotFound, "PROPERTY_NOT_FOUND", "Property not found"
	case errors.Is(err, core.ErrTokensNotFound):
		return http.StatusNotFound, "NOT_CONNECTED", "Platform account not connected"
	case errors.Is(err, adapters.ErrPlatformNotFound):
		return http.StatusNotFound, "PLATFORM_NOT_FOUND", err.Error()
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, publish.ErrNotPublished):
		return http.StatusConflict, "NOT_PUBLISHED", err.Error()
	case errors.Is(err, publish.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, platforms.ErrOAuthNotSupported):
		return http.StatusBadRequest, "OAUTH_NOT_SUPPORTED", err.Error()
	case errors.Is(err, publish.ErrPoolClosed):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", err.Error()
}

func classifyAPIError(apiErr *httpclient.APIError) (int, string, string) {
	if httpclient.IsReconnectRequired(apiErr) {
		return http.StatusConflict, CodeReconnectRequired, httpclient.UserMessage(apiErr.Code)
	}

	code := string(apiErr.Code)
	switch apiErr.Code {
	case httpclient.CodeValidationError:
		return http.StatusUnprocessableEntity, code, apiErr.Message
	case httpclient.CodeNotFound:
		return http.StatusNotFound, code, apiErr.Message
	case httpclient.CodeConflict:
		return http.StatusConflict, code, apiErr.Message
	case httpclient.CodeBadRequest, httpclient.CodeInvalidState, httpclient.CodeFlowExpired:
		return http.StatusBadRequest, code, apiErr.Message
	case httpclient.CodeRateLimited, httpclient.CodeNetworkError, httpclient.CodeTimeout, httpclient.CodeServerError:
		return http.StatusBadGateway, code, httpclient.UserMessage(apiErr.Code)
	}
	return http.StatusBadGateway, code, apiErr.Message
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"code":    "INVALID_REQUEST",
		"details": err.Error(),
	})
}
