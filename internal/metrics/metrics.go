// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	cartMutations  *prometheus.CounterVec
	ordersPlaced   *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	cleanupOrders  *prometheus.CounterVec
	cleanupRuns    prometheus.Counter
	cleanupLastRun prometheus.Gauge
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmarket_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawmarket_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		}, []string{"method", "path"}),
		cartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmarket_cart_mutations_total",
			Help: "Cart engine operations by kind and result",
		}, []string{"op", "result"}),
		ordersPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmarket_orders_placed_total",
			Help: "Orders placed by payment method",
		}, []string{"payment_method"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmarket_payment_webhooks_total",
			Help: "Payment callbacks by outcome",
		}, []string{"outcome"}),
		cleanupOrders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pawmarket_cleanup_orders_total",
			Help: "Orders visited by the cleanup job by outcome",
		}, []string{"outcome"}),
		cleanupRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "pawmarket_cleanup_runs_total",
			Help: "Completed cleanup sweeps",
		}),
		cleanupLastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "pawmarket_cleanup_last_run_timestamp_seconds",
			Help: "Unix time of the last completed cleanup sweep",
		}),
	}
}

// The recording methods below are safe on a nil *Metrics.

func (m *Metrics) CartMutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cartMutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) OrderPlaced(paymentMethod string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(paymentMethod).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CleanupOrders(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cleanupOrders.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) CleanupRun(at time.Time) {
	if m == nil {
		return
	}
	m.cleanupRuns.Inc()
	m.cleanupLastRun.Set(float64(at.Unix()))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	}
}
