package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mafa-systems/mafa-agents/pkg/metrics"
)

const defaultPushTimeout = 5 * time.Second

// pusher is one registered live connection. The websocket adapter is the
// production implementation; tests register fakes.
type pusher interface {
	Push(ctx context.Context, v any) error
	Close() error
}

// Hub tracks the set of live client connections and fans events out to them.
// A connection whose push fails is removed so one slow or dead client never
// blocks or breaks delivery to the others.
type Hub struct {
	mu          sync.Mutex
	conns       map[string]pusher
	pushTimeout time.Duration
	metrics     *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		conns:       make(map[string]pusher),
		pushTimeout: defaultPushTimeout,
		metrics:     m,
	}
}

func (h *Hub) Register(id string, conn pusher) {
	h.mu.Lock()
	h.conns[id] = conn
	n := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.LiveConnections.Set(float64(n))
	}
	log.Debug().Str("conn_id", id).Int("connections", n).Msg("websocket registered")
}

// Unregister removes and closes the connection. Calling it for an id that is
// absent, or twice for the same id, is a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	n := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close()
	if h.metrics != nil {
		h.metrics.LiveConnections.Set(float64(n))
	}
	log.Debug().Str("conn_id", id).Int("connections", n).Msg("websocket unregistered")
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast pushes v to every registered connection. Each push gets its own
// timeout; a failed push removes only that connection and delivery to the
// remaining connections proceeds.
func (h *Hub) Broadcast(ctx context.Context, v any) {
	h.mu.Lock()
	snapshot := make(map[string]pusher, len(h.conns))
	for id, conn := range h.conns {
		snapshot[id] = conn
	}
	h.mu.Unlock()

	for id, conn := range snapshot {
		pushCtx, cancel := context.WithTimeout(ctx, h.pushTimeout)
		err := conn.Push(pushCtx, v)
		cancel()
		if err == nil {
			continue
		}
		log.Warn().Err(err).Str("conn_id", id).Msg("push failed, dropping connection")
		if h.metrics != nil {
			h.metrics.EventsDropped.Inc()
		}
		h.Unregister(id)
	}
}

// wsSession adapts a websocket connection to the hub's push contract.
type wsSession struct {
	conn *websocket.Conn
}

func (s *wsSession) Push(ctx context.Context, v any) error {
	return wsjson.Write(ctx, s.conn, v)
}

func (s *wsSession) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	id := uuid.NewString()
	s.hub.Register(id, &wsSession{conn: conn})
	defer s.hub.Unregister(id)

	// Inbound frames are acknowledged and otherwise ignored; the stream
	// exists for server-to-client event delivery.
	ctx := r.Context()
	for {
		typ, _, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText {
			_ = wsjson.Write(ctx, conn, map[string]string{"type": "ack"})
		}
	}
}
