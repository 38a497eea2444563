package eventbus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus for single-node runs and tests. Subscribers
// receive events in publish order; a subscriber that falls behind its buffer
// drops the oldest pending delivery rather than blocking publishers.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Event)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, evt Event) error {
	evt.Topic = topic
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-ch:
			handler(ctx, evt)
		}
	}
}

func (b *MemoryBus) Ping(ctx context.Context) error { return nil }

func (b *MemoryBus) Close() error { return nil }

var _ Bus = (*MemoryBus)(nil)
