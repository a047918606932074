package ws

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is the envelope pushed to operator dashboards.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

// Hub fans collection activity out to connected operator dashboards.
type Hub struct {
	conns map[*Connection]bool
	mu    sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	events     chan *Event

	logger *zap.Logger
}

// Connection is one operator dashboard connection.
type Connection struct {
	Send chan []byte
	hub  *Hub
}

// NewHub creates the hub and starts its event loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		conns:      make(map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		events:     make(chan *Event, 256),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = true
			h.mu.Unlock()
			h.logger.Debug("operator connected", zap.Int("connections", h.ConnectionCount()))

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.conns[conn] {
				delete(h.conns, conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("operator disconnected", zap.Int("connections", h.ConnectionCount()))

		case event := <-h.events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for conn := range h.conns {
				select {
				case conn.Send <- data:
				default:
					// Slow consumer, drop the event for it.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// ConnectionCount returns the number of connected dashboards.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast implements service.Broadcaster.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal event payload", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.events <- &Event{Type: event, Payload: data, Time: time.Now()}:
	default:
		h.logger.Warn("event buffer full, dropping event", zap.String("event", event))
	}
}
