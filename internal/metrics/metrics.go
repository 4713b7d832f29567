// Package metrics は認証まわりの Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess   = "success"
	LoginFailure   = "failure"
	LoginLocked    = "locked"
	LoginForbidden = "forbidden"
)

// Metrics は Prometheus メトリクスのまとまりです。nil のままでも各メソッドは呼べます。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LoginAttemptsTotal  *prometheus.CounterVec
	RateLimitedTotal    *prometheus.CounterVec
	GateRejectionsTotal *prometheus.CounterVec
}

// New は専用レジストリにメトリクスを登録して返します。
func New(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Histogram of HTTP request latency",
				ConstLabels: labels,
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_login_attempts_total",
				Help:        "Login attempts by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_rate_limited_total",
				Help:        "Requests denied by the attempt limiter",
				ConstLabels: labels,
			},
			[]string{"action"},
		),
		GateRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_gate_rejections_total",
				Help:        "Requests stopped by the route gate",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.RateLimitedTotal,
		m.GateRejectionsTotal,
	)
	return m
}

// Handler は /metrics 用のハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRateLimited(action string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveGateRejection(kind string) {
	if m == nil {
		return
	}
	m.GateRejectionsTotal.WithLabelValues(kind).Inc()
}

// Middleware は HTTP リクエスト数とレイテンシを記録します。
// path にはルート定義（/api/users/:id など）を使いラベル数を抑えます。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
