package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/agent/tool"
	"github.com/mafa-systems/mafa-agents/pkg/httpx"
	"github.com/mafa-systems/mafa-agents/pkg/metrics"
	"github.com/mafa-systems/mafa-agents/pkg/ratelimit"
)

type fakeAgent struct {
	reply string
	err   error
	calls atomic.Int64
	seen  atomic.Value // last token observed on ctx
}

func (f *fakeAgent) Run(ctx context.Context, req contractx.AgentRequest) (string, error) {
	f.calls.Add(1)
	f.seen.Store(httpx.Token(ctx))
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeRegistry struct {
	agent *fakeAgent
}

func (f *fakeRegistry) Execute() contractx.Agent            { return f.agent }
func (f *fakeRegistry) MarketResearch() contractx.Agent     { return f.agent }
func (f *fakeRegistry) PortfolioManager() contractx.Agent   { return f.agent }
func (f *fakeRegistry) InvestmentStrategy() contractx.Agent { return f.agent }
func (f *fakeRegistry) General() contractx.Agent            { return f.agent }

func newTestServer(agent *fakeAgent) *Server {
	return New(Options{
		Agents:  &fakeRegistry{agent: agent},
		Metrics: metrics.New(),
	})
}

func postJSON(t *testing.T, handler http.Handler, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAgentEndpointSuccess(t *testing.T) {
	agent := &fakeAgent{reply: "your balance is 100"}
	srv := newTestServer(agent)

	rec := postJSON(t, srv.Routes(), "/execute-agent",
		`{"query":"what is my balance","userId":7,"sessionId":"s-1"}`, "Bearer tok-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data   string `json:"data"`
		UserID int64  `json:"userId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data != "your balance is 100" || resp.UserID != 7 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := agent.seen.Load(); got != "Bearer tok-1" {
		t.Fatalf("agent saw token %q", got)
	}
}

func TestMissingAuthorizationRejectedBeforeAgent(t *testing.T) {
	agent := &fakeAgent{reply: "ok"}
	srv := newTestServer(agent)

	rec := postJSON(t, srv.Routes(), "/general-agent", `{"query":"hi","userId":1}`, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if agent.calls.Load() != 0 {
		t.Fatalf("agent ran despite missing credential")
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"   ","userId":1}`},
		{"query too long", `{"query":"` + strings.Repeat("a", 1001) + `","userId":1}`},
		{"zero user", `{"query":"hi","userId":0}`},
		{"negative user", `{"query":"hi","userId":-4}`},
		{"session too long", `{"query":"hi","userId":1,"sessionId":"` + strings.Repeat("s", 101) + `"}`},
		{"malformed json", `{"query":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &fakeAgent{reply: "ok"}
			srv := newTestServer(agent)

			rec := postJSON(t, srv.Routes(), "/general-agent", tt.body, "Bearer t")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if agent.calls.Load() != 0 {
				t.Fatalf("agent ran on invalid input")
			}
		})
	}
}

func TestAgentFailureReturnsGenericError(t *testing.T) {
	agent := &fakeAgent{err: errors.New("broker exploded: secret dsn inside")}
	srv := newTestServer(agent)

	rec := postJSON(t, srv.Routes(), "/portfolio-manager-agent", `{"query":"hi","userId":1}`, "Bearer t")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret dsn") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "Failed to process request" {
		t.Fatalf("error = %q", resp["error"])
	}
}

func TestOrchestrationQueryDenylist(t *testing.T) {
	queries := []string{
		"please DROP the table",
		"drop my account",
		"DELETE everything",
		"can you TrUnCaTe this",
		"<script>alert(1)</script>",
		"click javascript:alert(1)",
	}

	for _, q := range queries {
		agent := &fakeAgent{reply: "ok"}
		srv := newTestServer(agent)

		body, _ := json.Marshal(map[string]any{"query": q, "userId": 1})
		rec := postJSON(t, srv.Routes(), "/mcp/query", string(body), "Bearer t")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: status = %d", q, rec.Code)
		}
		if agent.calls.Load() != 0 {
			t.Fatalf("query %q reached the agent", q)
		}
	}
}

func TestOrchestrationCleanQueryPasses(t *testing.T) {
	agent := &fakeAgent{reply: "routed"}
	srv := newTestServer(agent)

	rec := postJSON(t, srv.Routes(), "/mcp/query", `{"query":"rebalance toward bonds","userId":3}`, "Bearer t")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if agent.calls.Load() != 1 {
		t.Fatalf("agent calls = %d", agent.calls.Load())
	}
}

func TestDenylistDoesNotApplyToPlainAgentEndpoints(t *testing.T) {
	agent := &fakeAgent{reply: "ok"}
	srv := newTestServer(agent)

	// Specialist endpoints pass queries through untouched; only the
	// orchestration endpoint filters content.
	rec := postJSON(t, srv.Routes(), "/general-agent", `{"query":"should I delete my watchlist?","userId":1}`, "Bearer t")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimitedRequestGets429(t *testing.T) {
	agent := &fakeAgent{reply: "ok"}
	srv := New(Options{
		Agents:  &fakeRegistry{agent: agent},
		Metrics: metrics.New(),
		Limiter: ratelimit.New(ratelimit.Config{MaxRequests: 1}),
	})
	routes := srv.Routes()

	first := postJSON(t, routes, "/general-agent", `{"query":"hi","userId":1}`, "Bearer t")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := postJSON(t, routes, "/general-agent", `{"query":"hi","userId":1}`, "Bearer t")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", second.Code)
	}
	if agent.calls.Load() != 1 {
		t.Fatalf("rate-limited request still reached the agent")
	}

	var resp map[string]string
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "Too many requests" {
		t.Fatalf("error = %q", resp["error"])
	}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv := New(Options{
		Agents:  &fakeRegistry{agent: &fakeAgent{}},
		Metrics: metrics.New(),
		Checks: []DependencyCheck{
			{Name: "broker", Probe: func(ctx context.Context) error { return nil }},
			{Name: "memory", Probe: nil},
			{Name: "bus", Probe: func(ctx context.Context) error { return errors.New("down") }},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
		Connections  int               `json:"websocket_connections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Dependencies["broker"] != "healthy" || resp.Dependencies["memory"] != "unavailable" || resp.Dependencies["bus"] != "unhealthy" {
		t.Fatalf("dependencies = %v", resp.Dependencies)
	}
}

func TestHealthAllHealthyOrUnavailable(t *testing.T) {
	srv := New(Options{
		Agents:  &fakeRegistry{agent: &fakeAgent{}},
		Metrics: metrics.New(),
		Checks: []DependencyCheck{
			{Name: "broker", Probe: func(ctx context.Context) error { return nil }},
			{Name: "memory", Probe: nil},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestServerCatalog(t *testing.T) {
	srv := newTestServer(&fakeAgent{})

	req := httptest.NewRequest(http.MethodGet, "/mcp/servers", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Servers []serverEntry `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Servers) != 5 {
		t.Fatalf("servers = %d", len(resp.Servers))
	}
}

func TestMalformedAuthorizationSchemesRejected(t *testing.T) {
	headers := []string{
		"Basic dXNlcjpwYXNz",
		"Bearer",
		"Bearer   ",
		"token-without-scheme",
	}

	for _, header := range headers {
		agent := &fakeAgent{reply: "ok"}
		srv := newTestServer(agent)

		rec := postJSON(t, srv.Routes(), "/general-agent", `{"query":"hi","userId":1}`, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d", header, rec.Code)
		}
		if agent.calls.Load() != 0 {
			t.Fatalf("header %q reached the agent", header)
		}
	}
}

func TestBearerSchemeMatchesCaseInsensitively(t *testing.T) {
	agent := &fakeAgent{reply: "ok"}
	srv := newTestServer(agent)

	rec := postJSON(t, srv.Routes(), "/general-agent", `{"query":"hi","userId":1}`, "bearer tok-7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := agent.seen.Load(); got != "Bearer tok-7" {
		t.Fatalf("agent saw credential %q, want canonical bearer form", got)
	}
}

type fakePredictor struct {
	value float64
	err   error
	seen  string
}

func (f *fakePredictor) PredictNextClose(ctx context.Context, symbol string) (float64, error) {
	f.seen = symbol
	if f.err != nil {
		return 0, f.err
	}
	return f.value, nil
}

type fakeTrades struct {
	result tool.TradeValidation
	err    error
}

func (f *fakeTrades) ValidateTrade(ctx context.Context, symbol string, quantity int, action string) (tool.TradeValidation, error) {
	if f.err != nil {
		return tool.TradeValidation{}, f.err
	}
	return f.result, nil
}

func TestMarketPredictEndpoint(t *testing.T) {
	predictor := &fakePredictor{value: 198.25}
	srv := New(Options{
		Agents:    &fakeRegistry{agent: &fakeAgent{}},
		Metrics:   metrics.New(),
		Predictor: predictor,
	})

	rec := postJSON(t, srv.Routes(), "/mcp/market/predict", `{"symbol":"nvda"}`, "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Symbol         string  `json:"symbol"`
		PredictedClose float64 `json:"predicted_close"`
		Success        bool    `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Symbol != "NVDA" || resp.PredictedClose != 198.25 || !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if predictor.seen != "NVDA" {
		t.Fatalf("predictor saw %q", predictor.seen)
	}
}

func TestMarketPredictFailureAndBadInput(t *testing.T) {
	srv := New(Options{
		Agents:    &fakeRegistry{agent: &fakeAgent{}},
		Metrics:   metrics.New(),
		Predictor: &fakePredictor{err: errors.New("inference service down")},
	})
	routes := srv.Routes()

	rec := postJSON(t, routes, "/mcp/market/predict", `{"symbol":"AAPL"}`, "Bearer t")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failure status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "inference service") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}

	rec = postJSON(t, routes, "/mcp/market/predict", `{"symbol":"  "}`, "Bearer t")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty symbol status = %d", rec.Code)
	}
}

func TestTradeValidationEndpoint(t *testing.T) {
	trades := &fakeTrades{result: tool.TradeValidation{
		Symbol:   "AAPL",
		Quantity: 10,
		Action:   "buy",
		Valid:    false,
		Issues:   []string{"insufficient balance: need $1000.00, have $500.00"},
	}}
	srv := New(Options{
		Agents:  &fakeRegistry{agent: &fakeAgent{}},
		Metrics: metrics.New(),
		Trades:  trades,
	})

	rec := postJSON(t, srv.Routes(), "/mcp/execution/validate",
		`{"symbol":"AAPL","quantity":10,"action":"buy"}`, "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Valid   bool     `json:"valid"`
		Issues  []string `json:"issues"`
		Success bool     `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid || len(resp.Issues) != 1 || !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestTradeValidationRejectsBadInput(t *testing.T) {
	srv := New(Options{
		Agents:  &fakeRegistry{agent: &fakeAgent{}},
		Metrics: metrics.New(),
		Trades:  &fakeTrades{err: fmt.Errorf("%w: action must be buy or sell", contractx.ErrValidation)},
	})

	rec := postJSON(t, srv.Routes(), "/mcp/execution/validate",
		`{"symbol":"AAPL","quantity":1,"action":"hold"}`, "Bearer t")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
