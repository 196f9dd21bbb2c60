// Package metrics exposes Prometheus collectors for the liteflow console.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liteflow_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liteflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Cache metrics
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liteflow_cache_requests_total",
			Help: "Total number of cache lookups by key prefix and result (hit, miss)",
		},
		[]string{"prefix", "result"},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liteflow_cache_evictions_total",
			Help: "Total number of cache entries evicted to honour the capacity bound",
		},
	)

	CacheClearsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liteflow_cache_cleared_keys_total",
			Help: "Total number of cache keys removed by prefix clears",
		},
		[]string{"prefix"},
	)

	// Upstream metrics
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liteflow_remote_requests_total",
			Help: "Total number of calls to the code-hosting provider by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	StorageRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liteflow_storage_requests_total",
			Help: "Total number of storage backend operations by backend kind, operation and outcome",
		},
		[]string{"kind", "operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(CacheRequestsTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheClearsTotal)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(StorageRequestsTotal)
}

// Outcome returns the outcome label for an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on the given observer.
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
