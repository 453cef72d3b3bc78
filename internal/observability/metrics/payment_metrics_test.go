package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPaymentMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newPaymentMetrics(registry, Config{ServiceName: "payrecon", Environment: "test"})

	m.IncTransition("pending", "succeeded")
	m.IncTransition("pending", "succeeded")
	m.IncOutcome("payment_intent.succeeded", OutcomeDuplicate)
	m.SetQueueDepth(4)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "succeeded")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("payment_intent.succeeded", OutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 4 {
		t.Fatalf("expected queue depth 4, got %v", got)
	}
}

func TestHTTPMetricsMiddlewareSkipsScrape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "payrecon", Environment: "test"})

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/payments", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/metrics", "/api/payments", "/api/payments"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/payments", http.MethodGet, "200")); got != 2 {
		t.Fatalf("expected 2 counted requests, got %v", got)
	}
	if got := testutil.CollectAndCount(m.requests); got != 1 {
		t.Fatalf("expected only one label set, got %d", got)
	}
}
