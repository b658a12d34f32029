package weft

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the Metrics middleware.
type MetricsConfig struct {
	Namespace string               // metric name prefix (default: "weft")
	Registry  *prometheus.Registry // default: a new registry
	Buckets   []float64            // latency histogram buckets (default: prometheus.DefBuckets)
}

// Metrics collects per-route request counts and latencies.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewMetrics builds a Metrics collector and registers its collectors.
func NewMetrics(cfg ...MetricsConfig) *Metrics {
	c := MetricsConfig{
		Namespace: "weft",
		Buckets:   prometheus.DefBuckets,
	}
	if len(cfg) > 0 {
		if cfg[0].Namespace != "" {
			c.Namespace = cfg[0].Namespace
		}
		if cfg[0].Registry != nil {
			c.Registry = cfg[0].Registry
		}
		if len(cfg[0].Buckets) > 0 {
			c.Buckets = cfg[0].Buckets
		}
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: c.Registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.Namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.Namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   c.Buckets,
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.Namespace,
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
	}
	c.Registry.MustRegister(m.requests, m.latency, m.inflight)
	return m
}

// Middleware returns middleware that records request counts and latencies.
// The route label is the registered pattern, not the concrete path, so
// cardinality stays bounded.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.inflight.Inc()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.inflight.Dec()

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns the Prometheus exposition handler for this collector's
// registry, suitable for mounting with Router.Raw.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
