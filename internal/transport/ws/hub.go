// Package ws exposes billing signals to connected engine clients over
// websockets. A connected client doubles as the host surface purchase flows
// are anchored to.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Frame is the wire format for a broadcast signal.
type Frame struct {
	Signal string `json:"signal"`
	Args   []any  `json:"args"`
}

// Hub manages engine websocket connections. It broadcasts every emitted
// signal to all connected clients and reports the longest-connected client
// as the current host.
type Hub struct {
	logger *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
	locks map[string]*sync.Mutex
	order []string
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
		locks: make(map[string]*sync.Mutex),
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("engine ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = conn
	h.locks[id] = &sync.Mutex{}
	h.order = append(h.order, id)
	h.mu.Unlock()

	h.logger.Info("engine client connected", slog.String("client_id", id))

	go h.pingLoop(id, conn)
	go h.readLoop(id, conn)
}

// Emit broadcasts a signal frame to every connected client.
func (h *Hub) Emit(name string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(Frame{Signal: name, Args: args})
	if err != nil {
		return err
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.safeWrite(id, func(conn *websocket.Conn) error {
			return conn.WriteMessage(websocket.TextMessage, data)
		})
	}
	return nil
}

// Host returns the longest-connected client, or nil when no engine client
// is attached.
func (h *Hub) Host() ports.HostContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.order) == 0 {
		return nil
	}
	return hostContext{id: h.order[0]}
}

// ClientCount reports the number of attached engine clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) pingLoop(id string, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		alive := h.conns[id] == conn
		h.mu.RUnlock()
		if !alive {
			return
		}
		h.safeWrite(id, func(c *websocket.Conn) error {
			return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *Hub) readLoop(id string, conn *websocket.Conn) {
	defer h.closeConn(id, conn)

	conn.SetReadLimit(16 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		h.logger.Info("engine client closed ws",
			slog.String("client_id", id), slog.Int("code", code), slog.String("reason", text))
		h.closeConn(id, conn)
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage {
			trimmed := strings.TrimSpace(string(message))
			if strings.EqualFold(trimmed, "ping") {
				// Writes share the per-connection lock with broadcasts; the
				// connection allows only one writer at a time.
				h.safeWrite(id, func(c *websocket.Conn) error {
					return c.WriteMessage(websocket.TextMessage, []byte("pong"))
				})
			}
		}
	}
}

func (h *Hub) closeConn(id string, conn *websocket.Conn) {
	_ = conn.Close()
	h.mu.Lock()
	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		delete(h.locks, id)
		for i, existing := range h.order {
			if existing == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) safeWrite(id string, fn func(*websocket.Conn) error) {
	h.mu.RLock()
	conn := h.conns[id]
	mu := h.locks[id]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(conn); err != nil {
		h.logger.Error("engine client write failed",
			slog.String("client_id", id), slog.String("error", err.Error()))
		h.closeConn(id, conn)
	}
}

type hostContext struct {
	id string
}

func (hc hostContext) HostID() string { return hc.id }

var (
	_ ports.SignalSink   = (*Hub)(nil)
	_ ports.HostProvider = (*Hub)(nil)
)
