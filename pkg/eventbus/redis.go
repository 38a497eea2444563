package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

type RedisConfig struct {
	URL     string        `split_words:"true" default:"redis://localhost:6379"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

// RedisBus implements Bus on Redis pub/sub. One bus instance is shared by
// every publisher in the process plus the relay's single subscription.
type RedisBus struct {
	client redis.UniversalClient
}

func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", contractx.ErrBusUnavailable, err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return &RedisBus{client: redis.NewClient(opts)}, nil
}

// NewRedisBusFromClient wraps an existing client. Test hook.
func NewRedisBusFromClient(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, evt Event) error {
	evt.Topic = topic
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := b.client.Publish(ctx, topic, evt).Err(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", contractx.ErrBusUnavailable, topic, err)
	}
	return nil
}

// Subscribe drains the topic until ctx is done. Malformed messages are logged
// and skipped; they never abort the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, topic)
	defer pubsub.Close()

	// Force the subscription handshake so failures surface here instead of
	// silently dropping the first messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe to %s: %v", contractx.ErrBusUnavailable, topic, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("skipping malformed bus message")
				continue
			}
			handler(ctx, evt)
		}
	}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrBusUnavailable, err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

var _ Bus = (*RedisBus)(nil)
