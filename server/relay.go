package server

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mafa-systems/mafa-agents/pkg/eventbus"
	"github.com/mafa-systems/mafa-agents/pkg/metrics"
)

// Relay subscribes to the agent-results topic once at startup and forwards
// every delivered event to the hub. An unreachable bus disables the relay for
// the process lifetime; the HTTP API keeps serving.
type Relay struct {
	bus     eventbus.Bus
	hub     *Hub
	metrics *metrics.Metrics
}

func NewRelay(bus eventbus.Bus, hub *Hub, m *metrics.Metrics) *Relay {
	return &Relay{bus: bus, hub: hub, metrics: m}
}

// Start probes the bus and, when reachable, launches the subscription loop.
// It returns false when the bus is unreachable and the relay stays disabled.
func (r *Relay) Start(ctx context.Context) bool {
	if err := r.bus.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("event bus unreachable, relay disabled; live streaming is off")
		return false
	}

	go func() {
		err := r.bus.Subscribe(ctx, eventbus.TopicAgentResults, func(ctx context.Context, evt eventbus.Event) {
			r.hub.Broadcast(ctx, evt)
			if r.metrics != nil {
				r.metrics.EventsRelayed.Inc()
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event subscription ended")
		}
	}()

	log.Info().Str("topic", eventbus.TopicAgentResults).Msg("event relay started")
	return true
}
