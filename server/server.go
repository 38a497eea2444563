// Package server exposes the agent backend over HTTP: one endpoint per
// agent, a sanitized orchestration endpoint, a websocket event stream, and
// the health and metrics surfaces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/agent/tool"
	"github.com/mafa-systems/mafa-agents/pkg/eventbus"
	"github.com/mafa-systems/mafa-agents/pkg/metrics"
	"github.com/mafa-systems/mafa-agents/pkg/ratelimit"
)

const (
	maxQueryLen     = 1000
	maxSessionIDLen = 100
	maxBodyBytes    = 64 << 10
)

// deniedFragments are rejected anywhere in an orchestration query,
// case-insensitive, before any backend call is made.
var deniedFragments = []string{"drop", "delete", "truncate", "<script>", "javascript:"}

// TradeValidator checks a proposed order against the account state. The
// broker client satisfies it.
type TradeValidator interface {
	ValidateTrade(ctx context.Context, symbol string, quantity int, action string) (tool.TradeValidation, error)
}

type Options struct {
	Agents    contractx.Registry
	Bus       eventbus.Bus
	Hub       *Hub
	Metrics   *metrics.Metrics
	Limiter   *ratelimit.Limiter
	Predictor contractx.Predictor
	Trades    TradeValidator
	Checks    []DependencyCheck
	Version   string
}

type Server struct {
	agents    contractx.Registry
	bus       eventbus.Bus
	hub       *Hub
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	predictor contractx.Predictor
	trades    TradeValidator
	checks    []DependencyCheck
	version   string
}

func New(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Metrics)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		agents:    opts.Agents,
		bus:       opts.Bus,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		limiter:   opts.Limiter,
		predictor: opts.Predictor,
		trades:    opts.Trades,
		checks:    opts.Checks,
		version:   opts.Version,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Routes assembles the handler chain. Rate limiting fronts every route; auth
// guards everything except the health and metrics surfaces.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("GET /mcp/servers", s.requireAuth(http.HandlerFunc(s.handleServerCatalog)))
	mux.Handle("GET /ws/mcp-stream", s.requireAuth(http.HandlerFunc(s.handleStream)))

	agentRoutes := []struct {
		path  string
		name  string
		agent contractx.Agent
	}{
		{"/execute-agent", "execution_agent", s.agents.Execute()},
		{"/market-research-agent", "market_research_agent", s.agents.MarketResearch()},
		{"/portfolio-manager-agent", "portfolio_manager_agent", s.agents.PortfolioManager()},
		{"/investment-strategy-agent", "investment_strategy_agent", s.agents.InvestmentStrategy()},
		{"/general-agent", "general_agent", s.agents.General()},
	}
	for _, route := range agentRoutes {
		mux.Handle("POST "+route.path, s.protected(s.handleAgent(route.name, route.agent, false)))
	}
	mux.Handle("POST /mcp/query", s.protected(s.handleAgent("mcp_query", s.agents.Execute(), true)))
	if s.predictor != nil {
		mux.Handle("POST /mcp/market/predict", s.protected(http.HandlerFunc(s.handleMarketPredict)))
	}
	if s.trades != nil {
		mux.Handle("POST /mcp/execution/validate", s.protected(http.HandlerFunc(s.handleTradeValidation)))
	}

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = ratelimit.Middleware(ratelimit.MiddlewareOptions{Limiter: s.limiter})(handler)
	}
	return s.instrument(handler)
}

func (s *Server) protected(h http.Handler) http.Handler {
	return s.requireAuth(withRequestCache(h))
}

type agentRequest struct {
	Query     string `json:"query"`
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleAgent(name string, agent contractx.Agent, sanitize bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body agentRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
			return
		}
		if msg := validateRequest(body); msg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
			return
		}
		if sanitize {
			if frag := deniedFragment(body.Query); frag != "" {
				log.Warn().Int64("user_id", body.UserID).Str("fragment", frag).Msg("query rejected by content filter")
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": "Query contains disallowed content",
				})
				return
			}
		}

		req := contractx.AgentRequest{
			UserID:    body.UserID,
			Query:     strings.TrimSpace(body.Query),
			SessionID: body.SessionID,
		}

		started := time.Now()
		s.publishEvent(r, name, req.UserID, "agent_started", nil)

		reply, err := agent.Run(r.Context(), req)
		if err != nil {
			if s.metrics != nil {
				s.metrics.AgentFailures.WithLabelValues(name).Inc()
			}
			log.Error().Err(err).Str("agent", name).Int64("user_id", req.UserID).Msg("agent run failed")
			s.publishEvent(r, name, req.UserID, "agent_failed", nil)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Failed to process request",
			})
			return
		}

		s.publishEvent(r, name, req.UserID, "agent_completed", map[string]any{
			"duration_ms": time.Since(started).Milliseconds(),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   reply,
			"userId": req.UserID,
		})
	}
}

// publishEvent pushes a lifecycle event onto the bus. Publication is
// best-effort: a down bus costs the live stream, never the request.
func (s *Server) publishEvent(r *http.Request, agent string, userID int64, eventType string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	evt := eventbus.Event{
		Type:    eventType,
		Agent:   agent,
		UserID:  userID,
		Payload: payload,
	}
	if err := s.bus.Publish(r.Context(), eventbus.TopicAgentResults, evt); err != nil {
		log.Debug().Err(err).Str("type", eventType).Msg("event publish failed")
	}
}

func validateRequest(body agentRequest) string {
	query := strings.TrimSpace(body.Query)
	switch {
	case query == "":
		return "query must not be empty"
	case len(query) > maxQueryLen:
		return "query exceeds maximum length"
	case body.UserID < 1:
		return "userId must be a positive integer"
	case len(body.SessionID) > maxSessionIDLen:
		return "sessionId exceeds maximum length"
	}
	return ""
}

// deniedFragment returns the first denylisted fragment found in query, or ""
// when the query is clean.
func deniedFragment(query string) string {
	lowered := strings.ToLower(query)
	for _, frag := range deniedFragments {
		if strings.Contains(lowered, frag) {
			return frag
		}
	}
	return ""
}

func (s *Server) handleMarketPredict(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(body.Symbol))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	predicted, err := s.predictor.PredictNextClose(r.Context(), symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("prediction failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"symbol":  symbol,
			"error":   "Prediction unavailable",
			"success": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":          symbol,
		"predicted_close": predicted,
		"success":         true,
	})
}

func (s *Server) handleTradeValidation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol   string `json:"symbol"`
		Quantity int    `json:"quantity"`
		Action   string `json:"action"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	v, err := s.trades.ValidateTrade(r.Context(), body.Symbol, body.Quantity, body.Action)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Warn().Err(err).Str("symbol", body.Symbol).Msg("trade validation failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "Validation unavailable",
			"success": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		tool.TradeValidation
		Success bool `json:"success"`
	}{v, true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}
