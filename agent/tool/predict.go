package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
	"github.com/mafa-systems/mafa-agents/pkg/httpx"
)

type PredictorConfig struct {
	URL string `split_words:"true" default:"http://localhost:8090"`
}

// RemotePredictor calls the model-inference service. The model itself is an
// opaque collaborator: OHLCV history in, predicted next close out.
type RemotePredictor struct {
	http    *httpx.Client
	baseURL string
}

func NewRemotePredictor(cfg PredictorConfig, client *httpx.Client) *RemotePredictor {
	return &RemotePredictor{
		http:    client,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
	}
}

func (p *RemotePredictor) PredictNextClose(ctx context.Context, symbol string) (float64, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: symbol is required", contractx.ErrValidation)
	}

	resp, err := p.http.Post(ctx, p.baseURL+"/predict", map[string]any{"symbol": symbol})
	if err != nil {
		return 0, err
	}

	var out struct {
		PredictedClose float64 `json:"predicted_close"`
	}
	if err := resp.JSON(&out); err != nil {
		return 0, err
	}
	return out.PredictedClose, nil
}

func (p *RemotePredictor) Ping(ctx context.Context) error {
	_, err := p.http.Get(ctx, p.baseURL+"/health", httpx.WithTimeout(brokerPingTimeout))
	return err
}

var _ contractx.Predictor = (*RemotePredictor)(nil)
