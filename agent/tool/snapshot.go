package tool

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mafa-systems/mafa-agents/pkg/fetch"
)

// PortfolioSnapshot bundles the independent reads a portfolio turn needs.
// Fields that failed to load are left empty; Err reports the first failure so
// the caller can decide whether a partial snapshot is usable.
type PortfolioSnapshot struct {
	Dashboard   string
	Balance     float64
	Preferences string
	Err         error
}

// LoadPortfolioSnapshot fetches dashboard, balance, and preferences
// concurrently. All three calls share the caller's request context, so one
// credential and one GET cache cover the whole fan-out.
func (b *BrokerClient) LoadPortfolioSnapshot(ctx context.Context) PortfolioSnapshot {
	results := fetch.All(ctx,
		func(ctx context.Context) (string, error) {
			return b.Dashboard(ctx)
		},
		func(ctx context.Context) (string, error) {
			balance, err := b.Balance(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%.2f", balance), nil
		},
		func(ctx context.Context) (string, error) {
			return b.Preferences(ctx)
		},
	)

	snap := PortfolioSnapshot{
		Dashboard:   results[0].Value,
		Preferences: results[2].Value,
	}
	if results[1].Err == nil {
		snap.Balance, _ = strconv.ParseFloat(results[1].Value, 64)
	}
	for _, res := range results {
		if res.Err != nil {
			snap.Err = res.Err
			break
		}
	}
	return snap
}

// StrategyInputs bundles the reads the investment-strategy turn needs.
type StrategyInputs struct {
	Dashboard    string
	Preferences  string
	Transactions string
	Err          error
}

func (b *BrokerClient) LoadStrategyInputs(ctx context.Context) StrategyInputs {
	results := fetch.All(ctx,
		func(ctx context.Context) (string, error) {
			return b.Dashboard(ctx)
		},
		func(ctx context.Context) (string, error) {
			return b.Preferences(ctx)
		},
		func(ctx context.Context) (string, error) {
			return b.Transactions(ctx, 50, 0, "LAST_30_DAYS")
		},
	)

	inputs := StrategyInputs{
		Dashboard:    results[0].Value,
		Preferences:  results[1].Value,
		Transactions: results[2].Value,
	}
	for _, res := range results {
		if res.Err != nil {
			inputs.Err = res.Err
			break
		}
	}
	return inputs
}
