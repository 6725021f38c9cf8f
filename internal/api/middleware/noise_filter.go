package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var scannerPaths = []string{
	"/admin",
	"/phpmyadmin",
	"/wp-admin",
	"/wp-login",
	"/.env",
	"/.git",
	"/backup",
	"/cgi-bin",
	"/actuator",
	"/console",
	"/.aws",
	"/robots.txt",
	"/favicon.ico",
}

var scannerExtensions = []string{".php", ".asp", ".aspx", ".jsp", ".bak", ".sql", ".zip", ".tar", ".gz"}

// NoiseFilter marks scanner probes with skip_logging so the request logger
// drops them. It must be registered after Logging.
func NoiseFilter(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Authenticated traffic is always logged
		if c.GetBool(AuthenticatedKey) {
			return
		}

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if status == http.StatusMethodNotAllowed || (status >= 400 && isScannerPath(path)) {
			c.Set("skip_logging", true)
			logger.Debug("Scanner request filtered",
				"component", "api",
				"path", path,
				"method", c.Request.Method,
				"status", status,
				"client_ip", c.ClientIP())
		}
	}
}

// isScannerPath checks if a path is commonly probed by scanners
func isScannerPath(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range scannerPaths {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, ext := range scannerExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
