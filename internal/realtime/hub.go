package realtime

import (
	"context"
	"net/http"
	"sync"

	"grocer/internal/logging"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub manages WebSocket clients and broadcasts messages to them.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	mu          sync.Mutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewHub constructs a Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.OrNop(logger),
	}
}

// Run processes register/unregister/broadcast events until ctx ends, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				conn.Close()
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Send queues msg for broadcast.
func (h *Hub) Send(ctx context.Context, msg []byte) error {
	select {
	case h.Broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// ServeWS upgrades the request and registers the connection. Incoming
// frames are discarded; the read loop only notices disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), h.logger, "websocket upgrade failed", zap.Error(err))
		return
	}
	select {
	case h.Register <- conn:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				select {
				case h.Unregister <- conn:
				default:
					conn.Close()
				}
				return
			}
		}
	}()
}
