package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iho/ilpledger/internal/infrastructure/metrics"
)

// MetricsMiddleware records HTTP request metrics.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Wrap wraps an http.Handler with request counting and timing.
func (m *MetricsMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &metricsRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		m.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type metricsRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *metricsRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses path variables to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/accounts/"):
		return collapseSegments(path, "/api/v1/accounts", 1, ":id")
	case strings.HasPrefix(path, "/api/v1/transfers/"):
		return collapseSegments(path, "/api/v1/transfers", 1, ":id")
	case strings.HasPrefix(path, "/api/v1/assets/"):
		return collapseSegments(path, "/api/v1/assets", 2, ":code", ":scale")
	}

	return path
}

// collapseSegments replaces the first n path segments after prefix with the
// given placeholders, keeping any remaining suffix.
func collapseSegments(path, prefix string, n int, placeholders ...string) string {
	rest := strings.TrimPrefix(path, prefix+"/")
	parts := strings.SplitN(rest, "/", n+1)
	if len(parts) < n || parts[0] == "" {
		return path
	}

	normalized := prefix + "/" + strings.Join(placeholders, "/")
	if len(parts) > n {
		normalized += "/" + parts[n]
	}

	return normalized
}
