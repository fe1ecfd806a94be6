package feed

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clk-66/licensecore/internal/activation"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client is a single connected admin WebSocket connection. It never reads
// application messages from the browser — this feed is one-way — so
// readPump exists only to detect disconnects via the pong handler.
type client struct {
	feed *Feed
	conn *websocket.Conn
	send chan []byte
}

func newClient(f *Feed, conn *websocket.Conn) *client {
	return &client{feed: f, conn: conn, send: make(chan []byte, 64)}
}

func (c *client) readPump() {
	defer func() {
		c.feed.unregister <- c
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
				slog.Warn("feed: ws read error", "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// sendEvent enqueues evt on the client's send buffer and reports whether it
// fit. It never blocks and never mutates feed state itself — Run() is the
// only goroutine allowed to delete from f.clients or close c.send, so a
// client that can't keep up is reported back to Run() instead of closed
// here, which would otherwise race Run()'s own bookkeeping.
func (c *client) sendEvent(evt activation.Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("feed: marshal event", "err", err)
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
