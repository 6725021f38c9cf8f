package middleware

import (
	"listingsync/internal/idgen"
	"listingsync/internal/logging"

	"github.com/gin-gonic/gin"
)

const RequestIDKey = "X-Request-ID"

// maxRequestIDLength bounds ids taken from clients
const maxRequestIDLength = 128

// RequestID tags each request with an id, reusing a sane client-supplied one.
// The id is echoed in the response and carried on the request context so
// publisher logs for the request can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = idgen.New()
		}
		c.Header(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
