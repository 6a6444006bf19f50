// Package integration provides a reusable test harness for end-to-end
// testing of the action set server. It starts a full HTTP server with
// in-memory stores, running completion workers, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tixgate/actionset/internal/actionset"
	"github.com/tixgate/actionset/internal/config"
	"github.com/tixgate/actionset/internal/dispatch"
	"github.com/tixgate/actionset/internal/flows/cart"
	"github.com/tixgate/actionset/internal/flows/event"
	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/internal/rights"
	"github.com/tixgate/actionset/internal/transport"
	"github.com/tixgate/actionset/model"
)

// TestHarness encapsulates a fully wired server instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Sets   *actionset.Engine
	Rights *rights.Engine
	Queue  *dispatch.MemoryQueue
	Carts  *cart.MemoryStore
	Events *event.MemoryPublisher
	Config *config.Config
}

// NewTestHarness creates and starts a full server test instance. The server
// and its completion workers are cleaned up when the test completes.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	h := &TestHarness{t: t}
	h.issuer = newTokenIssuer(t)

	rightsCfg, err := rights.Load(filepath.Join(testdataDir(), "rights.yaml"))
	if err != nil {
		t.Fatalf("load rights declaration: %v", err)
	}
	h.Rights = rights.NewEngine(rightsCfg, rights.NewMemoryGrantStore(), nil)

	h.Carts = cart.NewMemoryStore()
	h.Events = event.NewMemoryPublisher()

	reg := registry.New()
	for _, err := range []error{
		reg.RegisterBuilder(cart.CreateBuilder{}),
		reg.RegisterBuilder(cart.CheckoutBuilder{Carts: h.Carts}),
		reg.RegisterBuilder(event.Builder{}),
		reg.RegisterLifecycle(cart.CreateLifecycle{Carts: h.Carts}),
		reg.RegisterLifecycle(cart.CheckoutLifecycle{Carts: h.Carts}),
		reg.RegisterLifecycle(event.Lifecycle{Events: h.Events}),
	} {
		if err != nil {
			t.Fatalf("register workflow: %v", err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("validate registry: %v", err)
	}

	h.Queue = dispatch.NewMemoryQueue(64)
	h.Sets = actionset.NewEngine(actionset.NewMemoryStore(), reg, h.Rights, h.Queue, actionset.Options{
		SystemPrincipals: []string{"svc-payments"},
	}, nil)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	t.Cleanup(stopWorkers)
	worker := dispatch.NewWorker(h.Queue, reg, nil, 3, 10*time.Millisecond)
	go worker.Run(workerCtx)

	h.Config = config.Defaults()
	h.Config.Observability.Metrics.Enabled = false
	h.Config.Identity = config.IdentityConfig{
		Issuer:     h.issuer.Issuer(),
		Audience:   h.issuer.Audience(),
		JWKSURL:    h.issuer.JWKSURL(),
		Algorithms: []string{"RS256"},
	}

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour, nil)
	router := transport.NewRouter(transport.Dependencies{
		Config:       h.Config,
		Sets:         h.Sets,
		Rights:       h.Rights,
		Authenticate: transport.JWTAuthenticator(h.Config.Identity, jwks),
		Ready: observability.ReadinessChecks{
			WorkflowsRegistered: func() bool { return len(reg.Names()) > 0 },
			RightsLoaded:        func() bool { return true },
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// testdataDir resolves the testdata directory next to this file.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, body)
	}
}

// AssertErrorCode checks the status and the envelope code of an error
// response.
func (h *TestHarness) AssertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, status, body)
	}
	var envelope struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &envelope)
	if envelope.Error == nil || envelope.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", envelope.Error, code)
	}
}

// CreateSet creates an action set over HTTP and returns it.
func (h *TestHarness) CreateSet(t *testing.T, token, name string, args map[string]any) model.ActionSet {
	t.Helper()
	resp := h.POST("/v1/actionsets", map[string]any{"name": name, "args": args}, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	var set model.ActionSet
	h.ParseJSON(resp, &set)
	return set
}

// WaitForCart polls the cart store until the cart appears or the deadline
// passes. Completion deliveries are asynchronous.
func (h *TestHarness) WaitForCart(t *testing.T, tenantID, id string) cart.Cart {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := h.Carts.Get(context.Background(), tenantID, id); err == nil {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cart %s/%s never materialized", tenantID, id)
	return cart.Cart{}
}

// WaitForCheckedOutCart polls until the cart is marked checked out.
func (h *TestHarness) WaitForCheckedOutCart(t *testing.T, tenantID, id string) cart.Cart {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := h.Carts.Get(context.Background(), tenantID, id); err == nil && c.CheckedOut {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cart %s/%s never checked out", tenantID, id)
	return cart.Cart{}
}
