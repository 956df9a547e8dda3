package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/genericchat/backend/internal/domain"
)

// Conn wraps a websocket connection with a write lock, since subscription
// goroutines and the dispatch loop both write to it.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Hub manages active WebSocket connections keyed by account and provides
// helper methods to broadcast events to one or more accounts.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.CanonicalKey]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[domain.CanonicalKey]map[*Conn]struct{}),
	}
}

// Register adds a connection for the given account.
func (h *Hub) Register(key domain.CanonicalKey, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[key] == nil {
		h.conns[key] = make(map[*Conn]struct{})
	}
	h.conns[key][conn] = struct{}{}
}

// Unregister removes a connection for the given account.
func (h *Hub) Unregister(key domain.CanonicalKey, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, key)
		}
	}
}

// Online reports whether the account has at least one active connection.
func (h *Hub) Online(key domain.CanonicalKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[key]) > 0
}

// BroadcastToKeys sends the given payload to all active connections of the
// provided accounts. Connections that fail to write are closed.
func (h *Hub) BroadcastToKeys(keys []domain.CanonicalKey, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range keys {
		conns, ok := h.conns[key]
		if !ok {
			continue
		}
		for conn := range conns {
			if err := conn.WriteJSON(payload); err != nil {
				conn.Close()
				// actual removal happens when the read loop exits
			}
		}
	}
}

// BroadcastAll sends the payload to all connected accounts.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.conns {
		for conn := range conns {
			if err := conn.WriteJSON(payload); err != nil {
				conn.Close()
			}
		}
	}
}
