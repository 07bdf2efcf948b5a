package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMonitoringMiddleware_RecordsRouteTemplate(t *testing.T) {
	mm := NewMonitoringMiddleware(nil, NewHealthChecker("nitematch", "test"), nil)

	router := gin.New()
	router.Use(mm.GinMiddleware())
	mm.RegisterRoutes(router)
	router.GET("/api/chat/:channel", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/chat/a_b", "/api/chat/c_d", "/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	labels := map[string]string{"method": "GET", "route": "/api/chat/:channel", "status": "200"}
	assert.Equal(t, 2.0, mm.Metrics().CounterValue("http_requests_total", labels))

	healthLabels := map[string]string{"method": "GET", "route": "/health", "status": "200"}
	assert.Equal(t, 0.0, mm.Metrics().CounterValue("http_requests_total", healthLabels))
}

func TestMonitoringMiddleware_Routes(t *testing.T) {
	mm := NewMonitoringMiddleware(nil, NewHealthChecker("nitematch", "test"), nil)
	router := gin.New()
	mm.RegisterRoutes(router)

	for _, path := range []string{"/metrics", "/metrics.json", "/health", "/ready", "/live"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestOTelInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	ins, err := NewOTelInstruments(provider.Meter("test"))
	require.NoError(t, err)

	mc := NewMetricsCollector()
	mc.AttachOTel(ins)
	mc.RecordSubmission("created")
	mc.RecordLogin("magic_link", "success")

	router := gin.New()
	router.Use(ins.GinMiddleware())
	router.GET("/api/matches", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/matches", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["nitematch_submissions_total"])
	assert.True(t, names["nitematch_logins_total"])
	assert.True(t, names["http_requests_total"])
	assert.True(t, names["http_request_duration_seconds"])
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
