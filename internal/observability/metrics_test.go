package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Touch every instrument so Gather reports it.
	m.RecordHTTPRequest(http.MethodGet, "/actionsets", 200, time.Millisecond)
	m.RecordSetCreate("cart_create", "ok")
	m.RecordSetUpdate("cart_create", "ok", time.Millisecond)
	m.RecordConsumption("cart_create")
	m.RecordChecksFailure("cart_create", "incomplete")
	m.RecordRightsDecision("actionset", true)
	m.RecordRightsGrant("actionset", "ok")
	m.RecordCompletionDelivery("cart_create", "ok")
	m.SetCompletionQueueDepth(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"actionset_http_requests_total",
		"actionset_http_request_duration_seconds",
		"actionset_set_creates_total",
		"actionset_set_updates_total",
		"actionset_set_consumptions_total",
		"actionset_checks_failures_total",
		"actionset_update_duration_seconds",
		"actionset_rights_decisions_total",
		"actionset_rights_grants_total",
		"actionset_completion_deliveries_total",
		"actionset_completion_queue_depth",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordRightsDecision(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRightsDecision("actionset", true)
	m.RecordRightsDecision("actionset", true)
	m.RecordRightsDecision("actionset", false)

	allow := testutil.ToFloat64(m.RightsDecisionsTotal.WithLabelValues("actionset", "allow"))
	deny := testutil.ToFloat64(m.RightsDecisionsTotal.WithLabelValues("actionset", "deny"))
	if allow != 2 || deny != 1 {
		t.Errorf("allow = %v, deny = %v, want 2 and 1", allow, deny)
	}
}

func TestMetricsMiddleware_usesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/actionsets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"as-1", "as-2", "as-3"} {
		req := httptest.NewRequest(http.MethodGet, "/actionsets/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
	}

	// All three requests collapse onto one pattern label.
	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/actionsets/{id}", "200"))
	if count != 3 {
		t.Errorf("pattern-labelled count = %v, want 3", count)
	}
}

func TestMetricsMiddleware_capturesStatus(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/boom", "409"))
	if count != 1 {
		t.Errorf("409 count = %v, want 1", count)
	}
}

func TestRoutePattern_fallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	if got := routePattern(req); got != "/raw/path" {
		t.Errorf("routePattern = %q, want raw path fallback", got)
	}
}

func TestHandler_servesPrometheusFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default runtime metrics in output")
	}
}
