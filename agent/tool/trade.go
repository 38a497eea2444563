package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/pkg/fetch"
)

// TradeValidation is the outcome of checking a proposed order against the
// account's cash balance and holdings before anything is sent to execution.
type TradeValidation struct {
	Symbol   string   `json:"symbol"`
	Quantity int      `json:"quantity"`
	Action   string   `json:"action"`
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
}

// holdingRow matches one element of the broker's holdings list.
type holdingRow struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// ValidateTrade checks whether the account can carry out the proposed order:
// a buy needs enough cash at the current price, a sell needs enough shares of
// the symbol. The balance, holdings and price reads run concurrently and
// share the request's credential and GET cache.
func (b *BrokerClient) ValidateTrade(ctx context.Context, symbol string, quantity int, action string) (TradeValidation, error) {
	symbol = normalizeSymbol(symbol)
	action = strings.ToLower(strings.TrimSpace(action))

	switch {
	case symbol == "":
		return TradeValidation{}, fmt.Errorf("%w: symbol is required", contractx.ErrValidation)
	case quantity < 1:
		return TradeValidation{}, fmt.Errorf("%w: quantity must be positive", contractx.ErrValidation)
	case action != "buy" && action != "sell":
		return TradeValidation{}, fmt.Errorf("%w: action must be buy or sell", contractx.ErrValidation)
	}

	balance, holdings, price := fetch.Join3(ctx,
		func(ctx context.Context) (float64, error) {
			return b.Balance(ctx)
		},
		func(ctx context.Context) (string, error) {
			return b.Holdings(ctx)
		},
		func(ctx context.Context) (float64, error) {
			return b.StockPrice(ctx, symbol)
		},
	)
	if balance.Err != nil {
		return TradeValidation{}, balance.Err
	}
	if holdings.Err != nil {
		return TradeValidation{}, holdings.Err
	}
	if price.Err != nil {
		return TradeValidation{}, price.Err
	}

	v := TradeValidation{
		Symbol:   symbol,
		Quantity: quantity,
		Action:   action,
		Valid:    true,
		Issues:   []string{},
	}

	switch action {
	case "buy":
		cost := price.Value * float64(quantity)
		if cost > balance.Value {
			v.Valid = false
			v.Issues = append(v.Issues,
				fmt.Sprintf("insufficient balance: need $%.2f, have $%.2f", cost, balance.Value))
		}
	case "sell":
		owned := ownedQuantity(holdings.Value, symbol)
		if owned < float64(quantity) {
			v.Valid = false
			v.Issues = append(v.Issues,
				fmt.Sprintf("insufficient shares: own %g, selling %d", owned, quantity))
		}
	}

	return v, nil
}

func ownedQuantity(holdingsJSON, symbol string) float64 {
	var rows []holdingRow
	if err := json.Unmarshal([]byte(holdingsJSON), &rows); err != nil {
		return 0
	}
	for _, row := range rows {
		if strings.EqualFold(row.Symbol, symbol) {
			return row.Quantity
		}
	}
	return 0
}
