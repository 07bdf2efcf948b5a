package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nitematch/nitematch/internal/telemetry"
)

// MonitoringMiddleware ties request metrics and health endpoints together
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	health  *HealthChecker
	config  *MiddlewareConfig
}

// MiddlewareConfig configures the monitoring middleware
type MiddlewareConfig struct {
	MetricsPath     string
	MetricsJSONPath string
	HealthPath      string
	ReadyPath       string
	LivePath        string
	// SkipPaths are not counted in request metrics
	SkipPaths []string
	// SlowRequestThreshold logs requests slower than this at warn level
	SlowRequestThreshold time.Duration
}

// DefaultMiddlewareConfig returns default configuration
func DefaultMiddlewareConfig() *MiddlewareConfig {
	return &MiddlewareConfig{
		MetricsPath:          "/metrics",
		MetricsJSONPath:      "/metrics.json",
		HealthPath:           "/health",
		ReadyPath:            "/ready",
		LivePath:             "/live",
		SkipPaths:            []string{"/favicon.ico", "/health", "/ready", "/live", "/metrics"},
		SlowRequestThreshold: time.Second,
	}
}

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(metrics *MetricsCollector, health *HealthChecker, config *MiddlewareConfig) *MonitoringMiddleware {
	if config == nil {
		config = DefaultMiddlewareConfig()
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	return &MonitoringMiddleware{metrics: metrics, health: health, config: config}
}

// GinMiddleware records request metrics keyed by route template
func (mm *MonitoringMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if mm.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		mm.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)

		if duration > mm.config.SlowRequestThreshold {
			telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
				"method":      c.Request.Method,
				"route":       route,
				"duration_ms": duration.Milliseconds(),
			}).Warn("Slow request")
		}
	}
}

func (mm *MonitoringMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range mm.config.SkipPaths {
		if path == skipPath {
			return true
		}
	}
	return false
}

// RegisterRoutes registers monitoring endpoints
func (mm *MonitoringMiddleware) RegisterRoutes(router gin.IRoutes) {
	router.GET(mm.config.MetricsPath, mm.metrics.PrometheusHandler())
	router.GET(mm.config.MetricsJSONPath, mm.metrics.JSONHandler())

	if mm.health != nil {
		router.GET(mm.config.HealthPath, mm.health.HealthHandler())
		router.GET(mm.config.ReadyPath, mm.health.ReadinessHandler())
		router.GET(mm.config.LivePath, mm.health.LivenessHandler())
	}
}

// Metrics returns the metrics collector
func (mm *MonitoringMiddleware) Metrics() *MetricsCollector {
	return mm.metrics
}

// Health returns the health checker
func (mm *MonitoringMiddleware) Health() *HealthChecker {
	return mm.health
}
