// Package ws streams lifecycle events to operator consoles over
// WebSocket. The hub fans supervisor events out to every connected
// client; a slow client loses events rather than stalling the publisher.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentsys/internal/supervisor"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan supervisor.Event
}

// Hub broadcasts lifecycle events to subscribed connections. Publish
// satisfies supervisor.Listener.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	logger  *logging.Logger
	sink    monitoring.Sink
}

// NewHub creates an empty hub. The sink receives subscriber and drop
// counters.
func NewHub(logger *logging.Logger, sink monitoring.Sink) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = monitoring.NopSink{}
	}
	return &Hub{
		clients: make(map[*client]bool),
		logger:  logger,
		sink:    sink,
	}
}

// Publish fans an event out to every connected client. Events to clients
// with a full buffer are dropped.
func (h *Hub) Publish(ev supervisor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.sink.Emit("ws_events_dropped", 1)
			h.logger.Debug("event dropped for slow subscriber",
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Clients returns the current subscriber count.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle upgrades the request and streams events until the client
// disconnects.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan supervisor.Event, sendBuffer)}
	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()
	h.sink.Emit("ws_subscribers_opened", 1)

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) writePump(cl *client) {
	for ev := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteJSON(ev); err != nil {
			h.drop(cl)
			return
		}
	}
}

// readPump discards inbound frames; the stream is one-way. Reading is
// still required to notice the close handshake.
func (h *Hub) readPump(cl *client) {
	defer h.drop(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	registered := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()

	if registered {
		close(cl.send)
		h.sink.Emit("ws_subscribers_closed", 1)
	}
	cl.conn.Close()
}
