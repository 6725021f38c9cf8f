package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// APIKeyHeader carries the shared service key
	APIKeyHeader = "X-API-Key"
	// UserIDHeader names the acting user, set by the upstream session layer
	UserIDHeader = "X-User-ID"

	// UserIDKey is the context key for the authenticated user ID
	UserIDKey = "user_id"
	// AuthenticatedKey is set once a request passed APIKeyAuth
	AuthenticatedKey = "authenticated"
)

// APIKeyAuth checks the service key and requires a user ID header.
// On success the user ID is available to handlers under UserIDKey.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(APIKeyHeader)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": UserIDHeader + " header required",
				"code":  "USER_REQUIRED",
			})
			return
		}

		c.Set(AuthenticatedKey, true)
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the user set by APIKeyAuth
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
