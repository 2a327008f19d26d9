package edge

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calendis/calendis-edge/pkg/domain"
)

// Metrics holds all Prometheus metrics for the edge router.
type Metrics struct {
	// Routing metrics
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec

	// Upstream metrics
	upstreamErrors *prometheus.CounterVec

	// Session metrics
	sessionVerifications *prometheus.CounterVec

	// Configuration metrics
	configReloads     *prometheus.CounterVec
	routingGeneration prometheus.Gauge

	// Admin HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a registry with every edge metric plus the Go and
// process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_routing_decisions_total",
				Help: "Total number of routing decisions by environment, subdomain, kind and rule",
			},
			[]string{"environment", "subdomain", "kind", "rule"},
		),

		decisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_request_duration_seconds",
				Help:    "Time to route and serve a data plane request in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_upstream_errors_total",
				Help: "Total number of requests that failed to reach the frontend origin",
			},
			[]string{"environment", "subdomain"},
		),

		sessionVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_session_verifications_total",
				Help: "Total number of session cookie verifications by result",
			},
			[]string{"result"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_config_reloads_total",
				Help: "Total number of configuration reload attempts by status",
			},
			[]string{"status"},
		),

		routingGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "edge_routing_table_generation",
				Help: "Generation of the active routing table",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_admin_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edge_admin_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.upstreamErrors,
		m.sessionVerifications,
		m.configReloads,
		m.routingGeneration,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordDecision records a routed request.
func (m *Metrics) RecordDecision(d domain.Decision, duration time.Duration) {
	if m == nil {
		return
	}
	cls := d.Classification
	m.decisionsTotal.WithLabelValues(string(cls.Environment), string(cls.Subdomain), string(d.Kind), d.Rule).Inc()
	m.decisionDuration.WithLabelValues(string(d.Kind)).Observe(duration.Seconds())
}

// RecordUpstreamError records a failed proxy attempt.
func (m *Metrics) RecordUpstreamError(cls domain.Classification) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(string(cls.Environment), string(cls.Subdomain)).Inc()
}

// RecordSessionVerification records the outcome of a cookie check.
func (m *Metrics) RecordSessionVerification(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.sessionVerifications.WithLabelValues(result).Inc()
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(status string) {
	if m == nil {
		return
	}
	m.configReloads.WithLabelValues(status).Inc()
}

// SetRoutingGeneration publishes the generation of the active routing table.
func (m *Metrics) SetRoutingGeneration(gen int64) {
	if m == nil {
		return
	}
	m.routingGeneration.Set(float64(gen))
}

// RecordHTTPRequest records an admin HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware creates HTTP middleware that records request metrics.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, getEndpointName(r.URL.Path), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support http.Hijacker")
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getEndpointName extracts a normalized endpoint name from the path.
func getEndpointName(path string) string {
	switch path {
	case "/healthz":
		return "healthz"
	case "/readyz":
		return "readyz"
	case "/metrics":
		return "metrics"
	case "/explain":
		return "explain"
	default:
		return "unknown"
	}
}
