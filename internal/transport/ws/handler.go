package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is same-origin in production; CORS policy is handled at
	// the HTTP layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades operator dashboard connections onto the hub.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// ActivityFeed handles GET /ws/activity.
func (h *Handler) ActivityFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &Connection{
		Send: make(chan []byte, 64),
		hub:  h.hub,
	}
	h.hub.Register(conn)

	go h.writePump(ws, conn)
	go h.readPump(ws, conn)
}

func (h *Handler) writePump(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the feed is one-way. It exists to
// process control frames and detect closure.
func (h *Handler) readPump(ws *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		ws.Close()
	}()

	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
