// Package feed broadcasts upload validation outcomes to connected moderation
// dashboards over WebSocket.
package feed

import (
	"sync"
	"time"

	"echoheritage/logger"

	"github.com/gorilla/websocket"
)

// Event kinds.
const (
	KindAccepted = "accepted"
	KindRejected = "rejected"
)

// Event is one validation outcome pushed to subscribers.
type Event struct {
	Kind      string    `json:"kind"`
	SoundID   string    `json:"soundId"`
	Title     string    `json:"title,omitempty"`
	Step      string    `json:"step,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans events out to all registered connections. Dead connections are
// dropped on write failure.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Register adds a subscriber connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	logger.Debug("feed subscriber registered", logger.Int("subscribers", len(h.conns)))
}

// Unregister removes and closes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
}

// Broadcast pushes an event to every subscriber.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(ev); err != nil {
			logger.Warn("dropping dead feed subscriber", logger.ErrorField(err))
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
