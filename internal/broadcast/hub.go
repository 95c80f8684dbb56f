// Package broadcast pushes refreshed overview summaries to connected
// websocket clients.
package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"alloydash/internal/observability"
)

// Hub fans one message out to every connected websocket client. A failed
// write drops that client; the rest keep receiving.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewHub creates a broadcast hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stdout, "[broadcast] ", log.LstdFlags)
	}
	return &Hub{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
	}
}

// Broadcast sends the JSON encoding of v to every connected client.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("failed to marshal broadcast message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Printf("websocket write error: %v", err)
			c.Close()
			delete(h.clients, c)
		}
	}
	observability.RecordBroadcast()
	observability.UpdateWSClients(len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler returns an http.HandlerFunc that accepts websocket connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("websocket upgrade error: %v", err)
			return
		}
		h.mu.Lock()
		h.clients[conn] = struct{}{}
		observability.UpdateWSClients(len(h.clients))
		h.mu.Unlock()

		// Read loop keeps the connection alive and detects disconnects.
		go func() {
			defer func() {
				h.mu.Lock()
				delete(h.clients, conn)
				observability.UpdateWSClients(len(h.clients))
				h.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
	observability.UpdateWSClients(0)
}
