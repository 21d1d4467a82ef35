package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlabs/voxd/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	wsPingPeriod = (pongWait * 9) / 10
)

// wsFrame is one event delivered over the WebSocket mirror, carrying the
// same envelopes as the SSE stream.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsConnection struct {
	conn *websocket.Conn
	bus  *events.Bus
	sub  *events.Subscriber
}

// handleWebSocket mirrors the event stream over a WebSocket for clients
// that cannot consume SSE.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return s.allowedOrigin(r) },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{conn: conn, bus: s.bus, sub: s.bus.Subscribe()}
	go c.writePump()
	go c.readPump()
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if !c.writeFrame(events.Connected()) {
		return
	}

	for {
		select {
		case env := <-c.sub.C:
			if !c.writeFrame(env) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) writeFrame(env events.Envelope) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	frame, err := json.Marshal(wsFrame{Event: env.Name, Data: env.Data})
	if err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame) == nil
}

func (c *wsConnection) readPump() {
	defer func() {
		c.bus.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
