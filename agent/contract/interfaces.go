package contract

import "context"

// Agent is the opaque reasoning collaborator: it decides what to say (and
// which tools to consult) for one user turn. Implementations must honor the
// request-scoped credential and cache carried on ctx when they make outbound
// calls.
type Agent interface {
	Run(ctx context.Context, req AgentRequest) (string, error)
}

// Registry exposes the supported agents, one per inbound endpoint.
type Registry interface {
	Execute() Agent
	MarketResearch() Agent
	PortfolioManager() Agent
	InvestmentStrategy() Agent
	General() Agent
}

// MemoryStore persists and retrieves per-user conversation context in a
// similarity-searchable key space.
type MemoryStore interface {
	WriteContext(ctx context.Context, userID int64, agent, content string, metadata map[string]any) error
	ReadContext(ctx context.Context, userID int64, agent, query string, limit int) ([]MemoryMatch, error)
}

// Predictor is the opaque price-prediction function: recent OHLCV history in,
// predicted next close out.
type Predictor interface {
	PredictNextClose(ctx context.Context, symbol string) (float64, error)
}
