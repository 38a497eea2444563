package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusDeliversInPublishOrder(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	go func() {
		_ = bus.Subscribe(ctx, "t", func(ctx context.Context, evt Event) {
			mu.Lock()
			got = append(got, evt.Type)
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
		})
	}()

	waitForSubscriber(t, bus, "t")
	for _, typ := range []string{"one", "two", "three"} {
		if err := bus.Publish(ctx, "t", Event{Type: typ}); err != nil {
			t.Fatalf("publish %s: %v", typ, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"one", "two", "three"} {
		if got[i] != want {
			t.Fatalf("delivery order %v", got)
		}
	}
}

func TestMemoryBusSubscriberRemovedOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- bus.Subscribe(ctx, "t", func(context.Context, Event) {})
	}()

	waitForSubscriber(t, bus, "t")
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("subscribe returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.mu.RLock()
		n := len(bus.subs["t"])
		bus.mu.RUnlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed, still %d registered", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryBusStampsTopicAndTime(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	go func() {
		_ = bus.Subscribe(ctx, "topic-x", func(ctx context.Context, evt Event) {
			got <- evt
		})
	}()

	waitForSubscriber(t, bus, "topic-x")
	if err := bus.Publish(ctx, "topic-x", Event{Type: "result"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-got:
		if evt.Topic != "topic-x" {
			t.Fatalf("topic = %q", evt.Topic)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func waitForSubscriber(t *testing.T, bus *MemoryBus, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.mu.RLock()
		n := len(bus.subs[topic])
		bus.mu.RUnlock()
		if n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
