package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// httpMetrics holds HTTP-specific metric instruments.
type httpMetrics struct {
	requestCounter *prometheus.CounterVec
	durationHisto  *prometheus.HistogramVec
}

// HTTPMetricsMiddleware returns a Gin middleware that records HTTP request
// metrics against registry. Tracks total requests and durations labeled by
// method, route pattern, and status code. If the collectors are already
// registered (a second metrics server sharing the registry) the middleware
// falls back to a no-op rather than panicking.
func HTTPMetricsMiddleware(registry *prometheus.Registry, namespace string) gin.HandlerFunc {
	m := &httpMetrics{
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status_code"}),
		durationHisto: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status_code"}),
	}

	if err := registry.Register(m.requestCounter); err != nil {
		return func(c *gin.Context) { c.Next() }
	}
	if err := registry.Register(m.durationHisto); err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		method := c.Request.Method
		path := sanitizePath(c.FullPath())
		statusCode := strconv.Itoa(c.Writer.Status())

		m.requestCounter.WithLabelValues(method, path, statusCode).Inc()
		m.durationHisto.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
	}
}

// sanitizePath converts actual request paths to route patterns for metrics.
// Returns the route pattern if available, otherwise returns the actual path.
// If path is empty (route not matched), returns "unknown".
func sanitizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}
