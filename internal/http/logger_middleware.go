// Package http hosts the /metrics server this library exposes for long-lived
// hosts that embed it (a LAPS-reader sidecar, a cache-warming daemon). It
// carries no REST API of its own: Protect/Unprotect are library calls, not
// HTTP endpoints.
package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// CustomLoggerMiddleware replaces Gin's default logger with one that emits
// structured slog records, matching the rest of this module's logging.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", c.Request.RemoteAddr),
		)
	}
}
