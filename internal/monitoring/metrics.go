package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the JSON view of a single series
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Help      string            `json:"help"`
	Labels    map[string]string `json:"labels,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// Counter represents a counter metric
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  uint64
}

// NewCounter creates a new counter
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{name: name, help: help, labels: copyLabels(labels)}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

// Add adds the given value to the counter
func (c *Counter) Add(value float64) {
	if value < 0 {
		return // counters never decrease
	}
	atomic.AddUint64(&c.value, uint64(value))
}

// Get returns the current value
func (c *Counter) Get() float64 {
	return float64(atomic.LoadUint64(&c.value))
}

// ToMetric converts to a Metric struct
func (c *Counter) ToMetric() Metric {
	return Metric{
		Name:      c.name,
		Type:      MetricTypeCounter,
		Help:      c.help,
		Labels:    c.labels,
		Value:     c.Get(),
		Timestamp: time.Now(),
	}
}

// Gauge represents a gauge metric
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  int64 // milli-units
}

// NewGauge creates a new gauge
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{name: name, help: help, labels: copyLabels(labels)}
}

// Set sets the gauge to the given value
func (g *Gauge) Set(value float64) {
	atomic.StoreInt64(&g.value, int64(value*1000))
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1000)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1000)
}

// Get returns the current value
func (g *Gauge) Get() float64 {
	return float64(atomic.LoadInt64(&g.value)) / 1000
}

// ToMetric converts to a Metric struct
func (g *Gauge) ToMetric() Metric {
	return Metric{
		Name:      g.name,
		Type:      MetricTypeGauge,
		Help:      g.help,
		Labels:    g.labels,
		Value:     g.Get(),
		Timestamp: time.Now(),
	}
}

// DefaultBuckets are latency buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Histogram represents a histogram metric
type Histogram struct {
	mu      sync.Mutex
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64 // per bucket, last entry is +Inf
	sum     float64
	count   uint64
}

// NewHistogram creates a new histogram
func NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{
		name:    name,
		help:    help,
		labels:  copyLabels(labels),
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

// Observe adds an observation to the histogram
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += value
	idx := sort.SearchFloat64s(h.buckets, value)
	h.counts[idx]++
}

// GetCount returns the total count of observations
func (h *Histogram) GetCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// GetSum returns the sum of all observations
func (h *Histogram) GetSum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// GetAverage calculates the average value
func (h *Histogram) GetAverage() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// GetPercentile returns the upper bound of the bucket holding the given
// percentile, or +Inf when it falls past the last bucket.
func (h *Histogram) GetPercentile(percentile float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return 0
	}
	target := float64(h.count) * percentile / 100.0
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		if float64(cumulative) >= target {
			return bound
		}
	}
	return h.buckets[len(h.buckets)-1]
}

// cumulative returns the Prometheus-style cumulative bucket counts.
func (h *Histogram) cumulative() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]uint64, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		out[i] = running
	}
	return h.buckets, out, h.sum, h.count
}

// ToMetric converts to a Metric struct
func (h *Histogram) ToMetric() Metric {
	labels := copyLabels(h.labels)
	if labels == nil {
		labels = make(map[string]string)
	}
	labels["average"] = strconv.FormatFloat(h.GetAverage(), 'f', 4, 64)
	labels["p95"] = strconv.FormatFloat(h.GetPercentile(95), 'f', 4, 64)
	labels["p99"] = strconv.FormatFloat(h.GetPercentile(99), 'f', 4, 64)

	return Metric{
		Name:      h.name,
		Type:      MetricTypeHistogram,
		Help:      h.help,
		Labels:    labels,
		Value:     float64(h.GetCount()),
		Timestamp: time.Now(),
	}
}

// MetricsCollector manages all metrics
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
	otel       *OTelInstruments
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// AttachOTel mirrors domain events into OpenTelemetry instruments.
func (mc *MetricsCollector) AttachOTel(instruments *OTelInstruments) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.otel = instruments
}

func (mc *MetricsCollector) instruments() *OTelInstruments {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.otel
}

// NewCounter creates or gets a counter
func (mc *MetricsCollector) NewCounter(name, help string, labels map[string]string) *Counter {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := mc.counters[key]; exists {
		return counter
	}
	counter := NewCounter(name, help, labels)
	mc.counters[key] = counter
	return counter
}

// NewGauge creates or gets a gauge
func (mc *MetricsCollector) NewGauge(name, help string, labels map[string]string) *Gauge {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if gauge, exists := mc.gauges[key]; exists {
		return gauge
	}
	gauge := NewGauge(name, help, labels)
	mc.gauges[key] = gauge
	return gauge
}

// NewHistogram creates or gets a histogram
func (mc *MetricsCollector) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if histogram, exists := mc.histograms[key]; exists {
		return histogram
	}
	histogram := NewHistogram(name, help, labels, buckets)
	mc.histograms[key] = histogram
	return histogram
}

// CounterValue returns the value of an existing counter, or 0.
func (mc *MetricsCollector) CounterValue(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if counter, ok := mc.counters[metricKey(name, labels)]; ok {
		return counter.Get()
	}
	return 0
}

// UpdateSystemMetrics updates runtime gauges
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	mc.NewGauge("go_memstats_alloc_bytes", "Number of bytes allocated and still in use", nil).Set(float64(memStats.Alloc))
	mc.NewGauge("go_memstats_sys_bytes", "Number of bytes obtained from system", nil).Set(float64(memStats.Sys))
	mc.NewGauge("go_goroutines", "Number of goroutines that currently exist", nil).Set(float64(runtime.NumGoroutine()))
	mc.NewGauge("go_gc_cycles", "Number of completed GC cycles", nil).Set(float64(memStats.NumGC))
}

// GetAllMetrics returns every series sorted by name and labels
func (mc *MetricsCollector) GetAllMetrics() []Metric {
	mc.UpdateSystemMetrics()

	mc.mu.RLock()
	metrics := make([]Metric, 0, len(mc.counters)+len(mc.gauges)+len(mc.histograms))
	for _, counter := range mc.counters {
		metrics = append(metrics, counter.ToMetric())
	}
	for _, gauge := range mc.gauges {
		metrics = append(metrics, gauge.ToMetric())
	}
	for _, histogram := range mc.histograms {
		metrics = append(metrics, histogram.ToMetric())
	}
	mc.mu.RUnlock()

	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Name != metrics[j].Name {
			return metrics[i].Name < metrics[j].Name
		}
		return formatLabels(metrics[i].Labels, "", "") < formatLabels(metrics[j].Labels, "", "")
	})
	return metrics
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	metrics := mc.GetAllMetrics()

	mc.mu.RLock()
	byType := map[string]int{
		"counters":   len(mc.counters),
		"gauges":     len(mc.gauges),
		"histograms": len(mc.histograms),
	}
	mc.mu.RUnlock()

	return map[string]interface{}{
		"timestamp":       time.Now(),
		"uptime":          time.Since(mc.startTime).Round(time.Second).String(),
		"total_metrics":   len(metrics),
		"metrics_by_type": byType,
		"metrics":         metrics,
	}
}

// WritePrometheus renders all series in the Prometheus text format
func (mc *MetricsCollector) WritePrometheus(sb *strings.Builder) {
	mc.UpdateSystemMetrics()

	type family struct {
		help   string
		kind   MetricType
		series []string
	}
	families := make(map[string]*family)
	add := func(name, help string, kind MetricType, line string) {
		f, ok := families[name]
		if !ok {
			f = &family{help: help, kind: kind}
			families[name] = f
		}
		f.series = append(f.series, line)
	}

	mc.mu.RLock()
	for _, c := range mc.counters {
		add(c.name, c.help, MetricTypeCounter, fmt.Sprintf("%s%s %g", c.name, formatLabels(c.labels, "", ""), c.Get()))
	}
	for _, g := range mc.gauges {
		add(g.name, g.help, MetricTypeGauge, fmt.Sprintf("%s%s %g", g.name, formatLabels(g.labels, "", ""), g.Get()))
	}
	for _, h := range mc.histograms {
		bounds, cumulative, sum, count := h.cumulative()
		var lines []string
		for i, bound := range bounds {
			le := strconv.FormatFloat(bound, 'g', -1, 64)
			lines = append(lines, fmt.Sprintf("%s_bucket%s %d", h.name, formatLabels(h.labels, "le", le), cumulative[i]))
		}
		lines = append(lines,
			fmt.Sprintf("%s_bucket%s %d", h.name, formatLabels(h.labels, "le", "+Inf"), cumulative[len(bounds)]),
			fmt.Sprintf("%s_sum%s %g", h.name, formatLabels(h.labels, "", ""), sum),
			fmt.Sprintf("%s_count%s %d", h.name, formatLabels(h.labels, "", ""), count),
		)
		add(h.name, h.help, MetricTypeHistogram, strings.Join(lines, "\n"))
	}
	mc.mu.RUnlock()

	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := families[name]
		sort.Strings(f.series)
		fmt.Fprintf(sb, "# HELP %s %s\n", name, f.help)
		fmt.Fprintf(sb, "# TYPE %s %s\n", name, f.kind)
		for _, line := range f.series {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
}

// PrometheusHandler returns a handler that exports metrics in Prometheus format
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sb strings.Builder
		mc.WritePrometheus(&sb)
		c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(sb.String()))
	}
}

// JSONHandler returns a handler that exports metrics in JSON format
func (mc *MetricsCollector) JSONHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mc.GetMetricsSummary())
	}
}

// RecordHTTPRequest records HTTP request metrics
func (mc *MetricsCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	labels := map[string]string{"method": method, "route": route, "status": strconv.Itoa(status)}
	mc.NewCounter("http_requests_total", "Total number of HTTP requests", labels).Inc()
	mc.NewHistogram("http_request_duration_seconds", "HTTP request duration in seconds",
		map[string]string{"method": method, "route": route}, nil).Observe(duration.Seconds())
	if status >= 500 {
		mc.NewCounter("http_errors_total", "Total number of HTTP 5xx responses", map[string]string{"route": route}).Inc()
	}
}

// RecordCacheOperation records cache operation metrics
func (mc *MetricsCollector) RecordCacheOperation(operation, result string) {
	labels := map[string]string{"operation": operation, "result": result}
	mc.NewCounter("cache_operations_total", "Total number of cache operations", labels).Inc()
}

// RecordSubmission records a questionnaire submission outcome
func (mc *MetricsCollector) RecordSubmission(result string) {
	mc.NewCounter("submissions_total", "Total number of questionnaire submissions", map[string]string{"result": result}).Inc()
	if ins := mc.instruments(); ins != nil {
		ins.submission(context.Background(), result)
	}
}

// RecordLogin records a login attempt by method and result
func (mc *MetricsCollector) RecordLogin(method, result string) {
	mc.NewCounter("logins_total", "Total number of login attempts", map[string]string{"method": method, "result": result}).Inc()
	if ins := mc.instruments(); ins != nil {
		ins.login(context.Background(), method, result)
	}
}

// RecordMagicLink records a sign-in link request outcome
func (mc *MetricsCollector) RecordMagicLink(result string) {
	mc.NewCounter("magic_links_total", "Total number of sign-in link requests", map[string]string{"result": result}).Inc()
}

// RecordMatchComputation records how long a match list took and how many
// entries it produced
func (mc *MetricsCollector) RecordMatchComputation(poolSize, matches int, duration time.Duration) {
	mc.NewHistogram("match_computation_duration_seconds", "Time spent ranking a viewer's matches", nil, nil).Observe(duration.Seconds())
	mc.NewGauge("match_pool_size", "Number of candidates in the last ranked pool", nil).Set(float64(poolSize))
	mc.NewCounter("matches_computed_total", "Total number of match lists computed", nil).Inc()
	if ins := mc.instruments(); ins != nil {
		ins.matchComputation(context.Background(), matches, duration)
	}
}

// RecordMessageSent records a chat message
func (mc *MetricsCollector) RecordMessageSent() {
	mc.NewCounter("chat_messages_sent_total", "Total number of chat messages sent", nil).Inc()
	if ins := mc.instruments(); ins != nil {
		ins.messageSent(context.Background())
	}
}

// RecordError records an error by type and component
func (mc *MetricsCollector) RecordError(component, errorType string) {
	labels := map[string]string{"component": component, "type": errorType}
	mc.NewCounter("errors_total", "Total number of errors", labels).Inc()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// metricKey is stable across map iteration orders.
func metricKey(name string, labels map[string]string) string {
	return name + formatLabels(labels, "", "")
}

// formatLabels renders labels sorted by key, with an optional extra pair.
func formatLabels(labels map[string]string, extraKey, extraValue string) string {
	if len(labels) == 0 && extraKey == "" {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	if extraKey != "" {
		pairs = append(pairs, fmt.Sprintf("%s=%q", extraKey, extraValue))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
