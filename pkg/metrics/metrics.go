// Package metrics exposes service counters on a private prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	AgentFailures    *prometheus.CounterVec
	LiveConnections  prometheus.Gauge
	EventsRelayed    prometheus.Counter
	EventsDropped    prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mafa",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests by path and status class.",
		}, []string{"path", "status"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mafa",
			Name:      "rate_limited_total",
			Help:      "Requests denied by the sliding-window rate limiter.",
		}),
		AgentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mafa",
			Name:      "agent_failures_total",
			Help:      "Agent runs that returned an error, by agent.",
		}, []string{"agent"}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mafa",
			Name:      "websocket_connections",
			Help:      "Currently registered websocket connections.",
		}),
		EventsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mafa",
			Name:      "events_relayed_total",
			Help:      "Bus events forwarded to websocket clients.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mafa",
			Name:      "events_dropped_total",
			Help:      "Per-connection pushes that failed and removed the connection.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RateLimitedTotal,
		m.AgentFailures,
		m.LiveConnections,
		m.EventsRelayed,
		m.EventsDropped,
	)

	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
