package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nitematch/nitematch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// CorrelationHeader carries the request correlation id in both directions
const CorrelationHeader = "X-Correlation-ID"

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths  []string `json:"skip_paths"`
	LogHeaders bool     `json:"log_headers"`
	// SlowThreshold promotes successful requests to warn level
	SlowThreshold time.Duration `json:"slow_threshold"`
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths:     []string{"/health", "/ready", "/live", "/metrics"},
		LogHeaders:    false,
		SlowThreshold: 5 * time.Second,
	}
}

// sensitiveHeaders never reach the log. The query string is not logged
// either since sign-in tokens travel there.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// RequestLogger assigns a correlation id to every request and logs its
// outcome at a level chosen by status
func RequestLogger(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" || len(correlationID) > 64 {
			correlationID = telemetry.NewCorrelationID()
		}
		c.Header(CorrelationHeader, correlationID)
		c.Request = c.Request.WithContext(telemetry.WithCorrelationID(c.Request.Context(), correlationID))

		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(duration.Nanoseconds()) / 1e6,
			"size":        c.Writer.Size(),
			"remote_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if userID, ok := UserID(c); ok {
			fields["user_id"] = userID
		}
		if config.LogHeaders {
			headers := make(map[string]string, len(c.Request.Header))
			for name, values := range c.Request.Header {
				if sensitiveHeaders[name] {
					headers[name] = "[REDACTED]"
				} else if len(values) > 0 {
					headers[name] = values[0]
				}
			}
			fields["headers"] = headers
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("HTTP request completed with server error")
		case status >= 400:
			logger.Warn("HTTP request completed with client error")
		case duration > config.SlowThreshold:
			logger.Warn("HTTP request completed (slow)")
		default:
			logger.Info("HTTP request completed")
		}
	}
}

// GetCorrelationID returns the request's correlation id
func GetCorrelationID(ctx context.Context) string {
	return telemetry.GetCorrelationID(ctx)
}
