package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichq/paymentflow/internal/api"
	"github.com/clinichq/paymentflow/internal/artifact"
	"github.com/clinichq/paymentflow/internal/config"
	"github.com/clinichq/paymentflow/internal/gateway"
	"github.com/clinichq/paymentflow/internal/gateway/mock"
	"github.com/clinichq/paymentflow/internal/monitor"
	"github.com/clinichq/paymentflow/internal/policy"
	"github.com/clinichq/paymentflow/internal/registry"
	"github.com/clinichq/paymentflow/internal/reporting"
	"github.com/clinichq/paymentflow/internal/session"
)

type stubFetcher struct {
	artifacts []artifact.Artifact
	err       error
}

func (f *stubFetcher) Fetch(ctx context.Context, invoiceID string) ([]artifact.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifacts, nil
}

type testEnv struct {
	engine *gin.Engine
	gw     *mock.Client
}

func newTestEnv(t *testing.T, fetcher artifact.Fetcher) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Port:           "0",
		Env:            "test",
		GatewayBaseURL: "http://unused",
		Provider:       "click",
		MaxAttempts:    60,
		PollIntervalMs: 3_600_000, // no scheduled ticks during handler tests
		CheckTimeoutMs: 1000,
		ReturnURL:      "https://clinic.example/return",
		CancelURL:      "https://clinic.example/cancel",
	}
	contract, err := monitor.NewContractMonitor(monitor.CreatePaymentSchema)
	require.NoError(t, err)
	pol, err := policy.NewInitiationPolicy(policy.DefaultRules())
	require.NoError(t, err)
	if fetcher == nil {
		fetcher = &stubFetcher{}
	}

	gw := mock.NewClient()
	server := api.NewServer(cfg, gw, fetcher, registry.New(), pol, contract, reporting.NewActivityLog(), zerolog.Nop())
	return &testEnv{engine: server.Routes(), gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) session.Snapshot {
	t.Helper()
	w := e.do(t, http.MethodPost, "/payments",
		`{"invoiceId": "inv-1", "provider": "click", "amount": 150000, "currency": "UZS"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, nil)
	snap := env.createSession(t)

	assert.Equal(t, session.StateAwaitingRedirect, snap.State)
	assert.NotEmpty(t, snap.ID)
	assert.NotEmpty(t, snap.PaymentURL)
	assert.NotEmpty(t, snap.ProviderPaymentID)
	assert.Equal(t, 1, env.gw.CreateCalls())
}

func TestCreatePayment_SchemaViolations(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"unknown provider", `{"invoiceId": "i", "provider": "stripe", "amount": 1, "currency": "UZS"}`},
		{"missing amount", `{"invoiceId": "i", "provider": "click", "currency": "UZS"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/payments", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Validation errors")
		})
	}
	assert.Equal(t, 0, env.gw.CreateCalls(), "invalid requests never reach the gateway")
}

func TestCreatePayment_InitiationRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.CreateFunc = func(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
		return nil, &gateway.InitiationError{Kind: gateway.InitiationRejected, Reason: "insufficient_invoice_amount"}
	}

	w := env.do(t, http.MethodPost, "/payments",
		`{"invoiceId": "inv-1", "provider": "click", "amount": 150000, "currency": "UZS"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Error   string           `json:"error"`
		Session session.Snapshot `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "insufficient_invoice_amount")
	assert.Equal(t, session.StateFailed, resp.Session.State)

	// The failed session can be restarted and re-initiated over HTTP.
	env.gw.CreateFunc = nil
	w = env.do(t, http.MethodPost, "/payments/"+resp.Session.ID+"/restart", "")
	require.Equal(t, http.StatusOK, w.Code)
	var restarted session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restarted))
	assert.Equal(t, session.StateInit, restarted.State)
	assert.Equal(t, 0, restarted.AttemptCount)

	w = env.do(t, http.MethodPost, "/payments/"+resp.Session.ID+"/initiate", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentFlow_PollCheckArtifacts(t *testing.T) {
	fetcher := &stubFetcher{artifacts: []artifact.Artifact{{ID: "t1", Kind: "visit_ticket", Title: "Visit ticket"}}}
	env := newTestEnv(t, fetcher)
	snap := env.createSession(t)

	w := env.do(t, http.MethodPost, "/payments/"+snap.ID+"/poll", "")
	require.Equal(t, http.StatusOK, w.Code)
	var polling session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &polling))
	assert.Equal(t, session.StatePolling, polling.State)

	// First manual check sees pending, second sees paid.
	w = env.do(t, http.MethodPost, "/payments/"+snap.ID+"/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	var afterCheck session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &afterCheck))
	assert.Equal(t, session.StatePolling, afterCheck.State)

	env.gw.QueueStatus(gateway.StatusPaid)
	w = env.do(t, http.MethodPost, "/payments/"+snap.ID+"/check", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &afterCheck))
	assert.Equal(t, session.StateSucceeded, afterCheck.State)

	w = env.do(t, http.MethodGet, "/payments/"+snap.ID+"/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var arts struct {
		Artifacts []artifact.Artifact `json:"artifacts"`
		Warning   string              `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &arts))
	require.Len(t, arts.Artifacts, 1)
	assert.Equal(t, "visit_ticket", arts.Artifacts[0].Kind)
	assert.Empty(t, arts.Warning)

	// Terminal outcome shows up in the retrospective report.
	w = env.do(t, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report reporting.RetrospectiveReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.SucceededPayments)
}

func TestArtifacts_ConflictBeforeSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	snap := env.createSession(t)

	w := env.do(t, http.MethodGet, "/payments/"+snap.ID+"/artifacts", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvalidTransitionsOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	snap := env.createSession(t)

	// Checking before polling started conflicts with the state machine.
	w := env.do(t, http.MethodPost, "/payments/"+snap.ID+"/check", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// So does restarting a session that has not failed.
	w = env.do(t, http.MethodPost, "/payments/"+snap.ID+"/restart", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/payments/nope"},
		{http.MethodPost, "/payments/nope/poll"},
		{http.MethodPost, "/payments/nope/check"},
		{http.MethodPost, "/payments/nope/restart"},
		{http.MethodDelete, "/payments/nope"},
		{http.MethodGet, "/payments/nope/artifacts"},
	} {
		w := env.do(t, route.method, route.path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", route.method, route.path)
	}
}

func TestDisposePayment(t *testing.T) {
	env := newTestEnv(t, nil)
	snap := env.createSession(t)

	w := env.do(t, http.MethodDelete, "/payments/"+snap.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/payments/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
