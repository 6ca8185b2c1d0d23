package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://localhost:3000" || origin == "http://127.0.0.1:3000"
	},
}

// wsClient is one connected /ws/trading subscriber.
type wsClient struct {
	conn *websocket.Conn
	send chan wsFrame
}

// Hub fans out broker.Event, signal, and provider-availability frames to
// every connected /ws/trading client, and itself satisfies broker.EventSink
// so the router can push events through it directly.
type Hub struct {
	log     zerolog.Logger
	metrics *metrics.Registry

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewHub(log zerolog.Logger, m *metrics.Registry) *Hub {
	return &Hub{log: log, metrics: m, clients: make(map[*wsClient]struct{})}
}

var _ broker.EventSink = (*Hub)(nil)

// Emit implements broker.EventSink: every router event becomes one of the
// closed-set trade frame types.
func (h *Hub) Emit(e broker.Event) {
	h.Broadcast(e.Type, e)
}

// Broadcast pushes one frame to every connected client, dropping frames for
// clients whose send buffer is full rather than blocking the whole hub.
func (h *Hub) Broadcast(frameType string, payload interface{}) {
	frame := wsFrame{Type: frameType, Payload: payload, Timestamp: time.Now()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClientsConnected.Set(float64(count))
	}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	if h.metrics != nil {
		h.metrics.WSClientsConnected.Set(float64(count))
	}
}

// ServeWS upgrades the request and runs the client's write pump until it
// disconnects; /ws/trading has no inbound command set, so no read pump is
// needed beyond draining control frames.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan wsFrame, 32)}
	h.Hub.register(client)
	defer h.Hub.unregister(client)

	client.send <- wsFrame{Type: "connected", Payload: map[string]string{"status": "ok"}, Timestamp: time.Now()}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for frame := range client.send {
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return
		}
	}
}
