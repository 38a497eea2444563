// Package tool wraps the financial-broker REST API. Every call flows through
// the shared resilient HTTP client, so retries, pooling, credential injection,
// and the per-turn GET cache apply uniformly.
//
// Broker response shapes (MAFA-B):
//
//	GET  /stockprice?symbol=X                → raw Double
//	GET  /stockchange?symbol=X               → raw StockChange
//	GET  /balance                            → envelope { data: Double }
//	GET  /holdings                           → envelope { data: List<Share> }
//	GET  /dashboard                          → raw List<StockDto>
//	GET  /profile/preferences                → envelope { data: PreferenceResponse }
//	GET  /transactions?limit=&page=&period=  → raw List<TransactionDto>
//	GET  /companies/{symbol}                 → envelope { data: CompanyDto }
//	GET  /portfolio/history?period=&interval= → envelope { data: List<Snapshot> }
//	POST /bulkstockprice {symbols:[]}        → envelope { data: List<StockPriceDto> }
//	POST /execute/buy  {symbol, quantity}    → TransactionDto
//	POST /execute/sell {symbol, quantity}    → TransactionDto
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/pkg/httpx"
)

const brokerPingTimeout = 3 * time.Second

type BrokerConfig struct {
	URL string `split_words:"true" default:"http://localhost:8080"`
}

// BrokerClient is the typed surface over the broker REST API.
type BrokerClient struct {
	http    *httpx.Client
	baseURL string
}

func NewBrokerClient(cfg BrokerConfig, client *httpx.Client) *BrokerClient {
	return &BrokerClient{
		http:    client,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
	}
}

// envelope is the ApiResponse wrapper some broker endpoints use.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (b *BrokerClient) Balance(ctx context.Context) (float64, error) {
	raw, err := b.getEnveloped(ctx, "/balance")
	if err != nil {
		return 0, err
	}
	var balance float64
	if err := json.Unmarshal(raw, &balance); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return balance, nil
}

func (b *BrokerClient) Holdings(ctx context.Context) (string, error) {
	raw, err := b.getEnveloped(ctx, "/holdings")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *BrokerClient) Dashboard(ctx context.Context) (string, error) {
	return b.getRaw(ctx, "/dashboard")
}

func (b *BrokerClient) Preferences(ctx context.Context) (string, error) {
	raw, err := b.getEnveloped(ctx, "/profile/preferences")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *BrokerClient) Transactions(ctx context.Context, limit, page int, period string) (string, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if period != "" {
		query.Set("period", period)
	}
	path := "/transactions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return b.getRaw(ctx, path)
}

func (b *BrokerClient) StockPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := b.getRaw(ctx, "/stockprice?symbol="+url.QueryEscape(normalizeSymbol(symbol)))
	if err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	if err != nil {
		return 0, fmt.Errorf("decode stock price for %s: %w", symbol, err)
	}
	return price, nil
}

func (b *BrokerClient) StockChange(ctx context.Context, symbol string) (string, error) {
	return b.getRaw(ctx, "/stockchange?symbol="+url.QueryEscape(normalizeSymbol(symbol)))
}

func (b *BrokerClient) BulkPrices(ctx context.Context, symbols []string) (string, error) {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if trimmed := normalizeSymbol(s); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	resp, err := b.http.Post(ctx, b.baseURL+"/bulkstockprice", map[string]any{"symbols": normalized})
	if err != nil {
		return "", err
	}
	return decodeEnvelope(resp)
}

func (b *BrokerClient) CompanyBySymbol(ctx context.Context, symbol string) (string, error) {
	raw, err := b.getEnveloped(ctx, "/companies/"+url.PathEscape(normalizeSymbol(symbol)))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *BrokerClient) PortfolioHistory(ctx context.Context, period, interval string) (string, error) {
	query := url.Values{}
	if period != "" {
		query.Set("period", period)
	}
	if interval != "" {
		query.Set("interval", interval)
	}
	raw, err := b.getEnveloped(ctx, "/portfolio/history?"+query.Encode())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Buy places a buy order. Returns the broker's TransactionDto JSON.
func (b *BrokerClient) Buy(ctx context.Context, symbol string, quantity int) (string, error) {
	return b.executeTrade(ctx, "/execute/buy", symbol, quantity)
}

// Sell places a sell order. Returns the broker's TransactionDto JSON.
func (b *BrokerClient) Sell(ctx context.Context, symbol string, quantity int) (string, error) {
	return b.executeTrade(ctx, "/execute/sell", symbol, quantity)
}

func (b *BrokerClient) executeTrade(ctx context.Context, path, symbol string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be a positive integer", contractx.ErrValidation)
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", contractx.ErrValidation)
	}

	resp, err := b.http.Post(ctx, b.baseURL+path, map[string]any{
		"symbol":   symbol,
		"quantity": quantity,
	})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Ping probes broker reachability for health reporting.
func (b *BrokerClient) Ping(ctx context.Context) error {
	_, err := b.http.Get(ctx, b.baseURL+"/sectors", httpx.WithTimeout(brokerPingTimeout))
	return err
}

func (b *BrokerClient) getRaw(ctx context.Context, path string) (string, error) {
	resp, err := b.http.Get(ctx, b.baseURL+path)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func (b *BrokerClient) getEnveloped(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := b.http.Get(ctx, b.baseURL+path)
	if err != nil {
		return nil, err
	}
	raw, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func decodeEnvelope(resp *httpx.Response) (string, error) {
	var env envelope
	if err := resp.JSON(&env); err != nil {
		return "", err
	}
	return string(env.Data), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
