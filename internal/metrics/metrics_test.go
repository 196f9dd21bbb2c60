package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != "ok" {
		t.Errorf("Outcome(nil) = %q, want ok", got)
	}
	if got := Outcome(errors.New("boom")); got != "error" {
		t.Errorf("Outcome(err) = %q, want error", got)
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	if d := timer.Duration(); d < 20*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 20ms", d)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	NewTimer().ObserveDuration(histogram)

	if n := testutil.CollectAndCount(histogram); n != 1 {
		t.Errorf("collected %d metrics, want 1", n)
	}
}

func TestCacheCounter(t *testing.T) {
	before := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("test", "hit"))
	CacheRequestsTotal.WithLabelValues("test", "hit").Inc()
	after := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("test", "hit"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/home", "200").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "liteflow_http_requests_total") {
		t.Error("metrics output missing liteflow_http_requests_total")
	}
}
