package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	opDurationBuckets   = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	SetCreatesTotal      *prometheus.CounterVec
	SetUpdatesTotal      *prometheus.CounterVec
	SetConsumptionsTotal *prometheus.CounterVec
	ChecksFailuresTotal  *prometheus.CounterVec
	UpdateDuration       *prometheus.HistogramVec

	// Rights metrics
	RightsDecisionsTotal *prometheus.CounterVec
	RightsGrantsTotal    *prometheus.CounterVec

	// Dispatch metrics
	CompletionDeliveriesTotal *prometheus.CounterVec
	CompletionQueueDepth      prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actionset_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Workflows
		SetCreatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_set_creates_total",
			Help: "Total number of action sets created.",
		}, []string{"workflow", "status"}),
		SetUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_set_updates_total",
			Help: "Total number of action submits.",
		}, []string{"workflow", "status"}),
		SetConsumptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_set_consumptions_total",
			Help: "Total number of consumed action sets.",
		}, []string{"workflow"}),
		ChecksFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_checks_failures_total",
			Help: "Total number of failed submit validations.",
		}, []string{"workflow", "outcome"}),
		UpdateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actionset_update_duration_seconds",
			Help:    "Action submit duration in seconds.",
			Buckets: opDurationBuckets,
		}, []string{"workflow"}),

		// Rights
		RightsDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_rights_decisions_total",
			Help: "Total number of rights checks.",
		}, []string{"entity_type", "decision"}),
		RightsGrantsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_rights_grants_total",
			Help: "Total number of grant mutations.",
		}, []string{"entity_type", "status"}),

		// Dispatch
		CompletionDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionset_completion_deliveries_total",
			Help: "Total number of completion deliveries.",
		}, []string{"workflow", "status"}),
		CompletionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actionset_completion_queue_depth",
			Help: "Number of pending completion tasks.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SetCreatesTotal,
		m.SetUpdatesTotal,
		m.SetConsumptionsTotal,
		m.ChecksFailuresTotal,
		m.UpdateDuration,
		m.RightsDecisionsTotal,
		m.RightsGrantsTotal,
		m.CompletionDeliveriesTotal,
		m.CompletionQueueDepth,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordSetCreate records a set creation attempt.
func (m *Metrics) RecordSetCreate(workflow, status string) {
	m.SetCreatesTotal.WithLabelValues(workflow, status).Inc()
}

// RecordSetUpdate records an action submit.
func (m *Metrics) RecordSetUpdate(workflow, status string, duration time.Duration) {
	m.SetUpdatesTotal.WithLabelValues(workflow, status).Inc()
	m.UpdateDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordConsumption records a consumed set.
func (m *Metrics) RecordConsumption(workflow string) {
	m.SetConsumptionsTotal.WithLabelValues(workflow).Inc()
}

// RecordChecksFailure records a failed submit validation; outcome is "error"
// or "incomplete".
func (m *Metrics) RecordChecksFailure(workflow, outcome string) {
	m.ChecksFailuresTotal.WithLabelValues(workflow, outcome).Inc()
}

// RecordRightsDecision records an authorization decision.
func (m *Metrics) RecordRightsDecision(entityType string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.RightsDecisionsTotal.WithLabelValues(entityType, decision).Inc()
}

// RecordRightsGrant records a grant mutation outcome.
func (m *Metrics) RecordRightsGrant(entityType, status string) {
	m.RightsGrantsTotal.WithLabelValues(entityType, status).Inc()
}

// RecordCompletionDelivery records a completion delivery outcome.
func (m *Metrics) RecordCompletionDelivery(workflow, status string) {
	m.CompletionDeliveriesTotal.WithLabelValues(workflow, status).Inc()
}

// SetCompletionQueueDepth sets the pending completion task count.
func (m *Metrics) SetCompletionQueueDepth(depth float64) {
	m.CompletionQueueDepth.Set(depth)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics
// using chi's route pattern (not the actual URL path) to avoid label
// cardinality explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context. Falls
// back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
