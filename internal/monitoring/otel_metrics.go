package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName    = "github.com/nitematch/nitematch/internal/monitoring"
	instrumentationVersion = "1.0.0"
)

// OTelInstruments holds the meter instruments exported over OTLP. Spans are
// produced by otelgin and otelsql, so nothing here starts a trace.
type OTelInstruments struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	httpActiveRequests  metric.Int64UpDownCounter
	submissions         metric.Int64Counter
	logins              metric.Int64Counter
	messagesSent        metric.Int64Counter
	matchDuration       metric.Float64Histogram
	matchesReturned     metric.Int64Histogram
}

// NewOTelInstruments creates instruments on meter, or on the global meter
// provider when meter is nil.
func NewOTelInstruments(meter metric.Meter) (*OTelInstruments, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))
	}

	var (
		ins OTelInstruments
		err error
	)

	if ins.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if ins.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if ins.httpActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_active_requests counter: %w", err)
	}

	if ins.submissions, err = meter.Int64Counter(
		"nitematch_submissions_total",
		metric.WithDescription("Questionnaire submissions by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create submissions counter: %w", err)
	}

	if ins.logins, err = meter.Int64Counter(
		"nitematch_logins_total",
		metric.WithDescription("Login attempts by method and result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create logins counter: %w", err)
	}

	if ins.messagesSent, err = meter.Int64Counter(
		"nitematch_chat_messages_total",
		metric.WithDescription("Chat messages sent"),
	); err != nil {
		return nil, fmt.Errorf("failed to create chat messages counter: %w", err)
	}

	if ins.matchDuration, err = meter.Float64Histogram(
		"nitematch_match_computation_seconds",
		metric.WithDescription("Time spent ranking one viewer's matches"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create match duration histogram: %w", err)
	}

	if ins.matchesReturned, err = meter.Int64Histogram(
		"nitematch_matches_returned",
		metric.WithDescription("Number of matches returned per computation"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5),
	); err != nil {
		return nil, fmt.Errorf("failed to create matches returned histogram: %w", err)
	}

	return &ins, nil
}

func (ins *OTelInstruments) submission(ctx context.Context, result string) {
	ins.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (ins *OTelInstruments) login(ctx context.Context, method, result string) {
	ins.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

func (ins *OTelInstruments) messageSent(ctx context.Context) {
	ins.messagesSent.Add(ctx, 1)
}

func (ins *OTelInstruments) matchComputation(ctx context.Context, matches int, duration time.Duration) {
	ins.matchDuration.Record(ctx, duration.Seconds())
	ins.matchesReturned.Record(ctx, int64(matches))
}

// GinMiddleware records request counts, latency and in-flight requests
func (ins *OTelInstruments) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		inflight := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
		)

		ins.httpActiveRequests.Add(ctx, 1, inflight)
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		ins.httpActiveRequests.Add(ctx, -1, inflight)

		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(status)),
			attribute.String("status_class", statusClass(status)),
		)
		ins.httpRequestsTotal.Add(ctx, 1, attrs)
		ins.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
