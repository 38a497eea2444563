package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" default:"google/gemini-2.5-flash"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"2000"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client concentrates every model-API touchpoint: one chat completion round
// and one embedding call. Agents never talk to the SDK directly.
type Client struct {
	sdk                 *openaisdk.Client
	model               string
	embeddingModel      string
	maxCompletionTokens int64
	temperature         float64
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	sdk := openaisdk.NewClient(opts...)

	return &Client{
		sdk:                 &sdk,
		model:               strings.TrimSpace(cfg.Model),
		embeddingModel:      strings.TrimSpace(cfg.EmbeddingModel),
		maxCompletionTokens: cfg.MaxCompletionTokens,
		temperature:         cfg.Temperature,
	}, nil
}

func MustNewClient(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Complete runs a single system+user chat round and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userMessage),
		},
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(c.maxCompletionTokens)
	}
	if c.temperature > 0 {
		params.Temperature = openaisdk.Float(c.temperature)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", contractx.ErrInternal, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", contractx.ErrInternal)
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: chat completion returned empty content", contractx.ErrInternal)
	}
	return reply, nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(c.embeddingModel),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed text: %v", contractx.ErrInternal, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: embedding response is empty", contractx.ErrInternal)
	}
	return resp.Data[0].Embedding, nil
}

// Ping verifies the model API answers authenticated requests.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.sdk.Models.List(ctx); err != nil {
		return fmt.Errorf("%w: model api unreachable: %v", contractx.ErrUpstream, err)
	}
	return nil
}
