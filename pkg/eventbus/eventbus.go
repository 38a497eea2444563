// Package eventbus carries asynchronously produced agent events from any
// publisher to the websocket relay. The Redis implementation is the
// production path; the memory implementation backs single-process runs and
// tests.
package eventbus

import (
	"context"
	"encoding/json"
	"time"
)

// TopicAgentResults is the channel relayed to live client connections.
const TopicAgentResults = "mafa:events:agent-results"

// Event is one bus message. Payload stays opaque to the transport.
type Event struct {
	Topic     string         `json:"topic"`
	Type      string         `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	UserID    int64          `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// Handler consumes one delivered event. Delivery order follows publish order
// on the topic.
type Handler func(ctx context.Context, evt Event)

// Bus is the pub/sub contract. Subscribe blocks, draining the topic until ctx
// is done; it is intended to run in its own goroutine.
type Bus interface {
	Publish(ctx context.Context, topic string, evt Event) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}
