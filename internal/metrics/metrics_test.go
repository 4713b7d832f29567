package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New("test")
	m.ObserveLogin(LoginFailure)
	m.ObserveLogin(LoginFailure)
	m.ObserveRateLimited("login")
	m.ObserveGateRejection("redirect")

	if got := testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues(LoginFailure)); got != 2 {
		t.Fatalf("login failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("login")); got != 1 {
		t.Fatalf("rate limited = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveLogin(LoginSuccess)
	m.ObserveRateLimited("login")
	m.ObserveGateRejection("unauthorized")
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("test")

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/42", nil))
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/users/:id", "200")); got != 1 {
		t.Fatalf("http requests = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("unexpected /metrics response: %d", rec.Code)
	}
}
