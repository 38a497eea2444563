package agents

import (
	"context"
	"fmt"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	toolx "github.com/mafa-systems/mafa-agents/agent/tool"
	"github.com/mafa-systems/mafa-agents/pkg/fetch"
)

const (
	AgentExecute            = "execution_agent"
	AgentMarketResearch     = "market_research_agent"
	AgentPortfolioManager   = "portfolio_manager_agent"
	AgentInvestmentStrategy = "investment_strategy_agent"
	AgentGeneral            = "general_agent"
)

// Registry wires one runner per supported agent.
type Registry struct {
	execute   contractx.Agent
	market    contractx.Agent
	portfolio contractx.Agent
	strategy  contractx.Agent
	general   contractx.Agent
}

func NewRegistry(model Completer, broker *toolx.BrokerClient, memory contractx.MemoryStore) *Registry {
	if memory == nil {
		memory = noopMemory{}
	}

	return &Registry{
		execute: &runner{
			name:         AgentExecute,
			systemPrompt: executePrompt,
			model:        model,
			memory:       memory,
			prime:        executePrimer(broker),
		},
		market: &runner{
			name:         AgentMarketResearch,
			systemPrompt: marketResearchPrompt,
			model:        model,
			memory:       memory,
		},
		portfolio: &runner{
			name:         AgentPortfolioManager,
			systemPrompt: portfolioManagerPrompt,
			model:        model,
			memory:       memory,
			prime:        portfolioPrimer(broker),
		},
		strategy: &runner{
			name:         AgentInvestmentStrategy,
			systemPrompt: investmentStrategyPrompt,
			model:        model,
			memory:       memory,
			prime:        strategyPrimer(broker),
		},
		general: &runner{
			name:         AgentGeneral,
			systemPrompt: generalPrompt,
			model:        model,
			memory:       memory,
		},
	}
}

func (r *Registry) Execute() contractx.Agent            { return r.execute }
func (r *Registry) MarketResearch() contractx.Agent     { return r.market }
func (r *Registry) PortfolioManager() contractx.Agent   { return r.portfolio }
func (r *Registry) InvestmentStrategy() contractx.Agent { return r.strategy }
func (r *Registry) General() contractx.Agent            { return r.general }

// executePrimer loads balance and holdings concurrently; both reads share the
// turn's credential and GET cache.
func executePrimer(broker *toolx.BrokerClient) primeFunc {
	if broker == nil {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		balance, holdings := fetch.Join2(ctx,
			func(ctx context.Context) (float64, error) {
				return broker.Balance(ctx)
			},
			func(ctx context.Context) (string, error) {
				return broker.Holdings(ctx)
			},
		)
		if balance.Err != nil {
			return "", balance.Err
		}
		if holdings.Err != nil {
			return "", holdings.Err
		}
		return fmt.Sprintf("Cash balance: %.2f\nHoldings: %s", balance.Value, holdings.Value), nil
	}
}

func portfolioPrimer(broker *toolx.BrokerClient) primeFunc {
	if broker == nil {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		snap := broker.LoadPortfolioSnapshot(ctx)
		if snap.Err != nil {
			return "", snap.Err
		}
		return fmt.Sprintf("Dashboard: %s\nCash balance: %.2f\nPreferences: %s",
			snap.Dashboard, snap.Balance, snap.Preferences), nil
	}
}

func strategyPrimer(broker *toolx.BrokerClient) primeFunc {
	if broker == nil {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		inputs := broker.LoadStrategyInputs(ctx)
		if inputs.Err != nil {
			return "", inputs.Err
		}
		return fmt.Sprintf("Dashboard: %s\nPreferences: %s\nRecent transactions: %s",
			inputs.Dashboard, inputs.Preferences, inputs.Transactions), nil
	}
}

type noopMemory struct{}

func (noopMemory) WriteContext(context.Context, int64, string, string, map[string]any) error {
	return nil
}

func (noopMemory) ReadContext(context.Context, int64, string, string, int) ([]contractx.MemoryMatch, error) {
	return nil, nil
}

var _ contractx.Registry = (*Registry)(nil)
