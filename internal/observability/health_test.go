package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.Version == "" {
		t.Error("Version should never be empty")
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		WorkflowsRegistered: func() bool { return true },
		RightsLoaded:        func() bool { return true },
		WorkflowStore:       stubChecker{},
		Dispatch:            stubChecker{},
	}

	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("Status = %q, want ready", resp.Status)
	}
	for _, name := range []string{"workflows", "rights", "workflow_store", "dispatch"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("check %q = %+v, want ok", name, resp.Checks[name])
		}
	}
	if _, present := resp.Checks["grant_store"]; present {
		t.Error("nil checkers should be skipped")
	}
}

func TestHandleReady_dependencyDown(t *testing.T) {
	checks := ReadinessChecks{
		WorkflowsRegistered: func() bool { return true },
		RightsLoaded:        func() bool { return true },
		GrantStore:          stubChecker{err: errors.New("connection refused")},
	}

	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "not_ready" {
		t.Errorf("Status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["grant_store"].Error != "connection refused" {
		t.Errorf("grant_store = %+v", resp.Checks["grant_store"])
	}
}

func TestHandleReady_noWorkflows(t *testing.T) {
	checks := ReadinessChecks{
		WorkflowsRegistered: func() bool { return false },
		RightsLoaded:        func() bool { return true },
	}

	rec := httptest.NewRecorder()
	HandleReady(checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ReadinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Checks["workflows"].Error != "no workflows registered" {
		t.Errorf("workflows = %+v", resp.Checks["workflows"])
	}
}

func TestHandleReady_nilRequiredCheckIsError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleReady(ReadinessChecks{})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
