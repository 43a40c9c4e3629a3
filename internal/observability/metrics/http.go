package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the request-level instruments.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewHTTPMetrics configures the HTTP server instruments.
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	meter := provider.Meter("walking/http")

	requests, err := meter.Int64Counter("http_server_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_server_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64UpDownCounter("http_server_inflight_requests")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requests: requests,
		duration: duration,
		inflight: inflight,
	}, nil
}

// GinMiddleware records count, latency, and inflight gauges per route.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		ctx := c.Request.Context()

		m.inflight.Add(ctx, 1)
		defer m.inflight.Add(ctx, -1)

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		attrs := FilterAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)

		m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}
