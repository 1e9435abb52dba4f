package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAPIMetricsObserve(t *testing.T) {
	m := newAPIMetrics(prometheus.NewRegistry())
	m.Observe("/v1/{variant}/requests", http.MethodPost, http.StatusCreated, 10*time.Millisecond)
	m.Observe("/v1/{variant}/requests", http.MethodPost, http.StatusConflict, time.Millisecond)
	m.Observe("", "", http.StatusNotFound, 0)
	m.RecordThrottle("")
	m.RecordReplay()

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/v1/{variant}/requests", "POST", "success")); got != 1 {
		t.Fatalf("success count %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/v1/{variant}/requests", "POST", "409")); got != 1 {
		t.Fatalf("error count %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("unmatched", "unknown", "404")); got != 1 {
		t.Fatalf("unmatched count %v", got)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")); got != 1 {
		t.Fatalf("throttle count %v", got)
	}
	if got := testutil.ToFloat64(m.replays); got != 1 {
		t.Fatalf("replay count %v", got)
	}
}
