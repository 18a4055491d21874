package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 32
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	tables map[string]struct{} // empty means all tables
}

func newClient(hub *Hub, conn *websocket.Conn, tables []string) *client {
	filter := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		if t != "" {
			filter[t] = struct{}{}
		}
	}
	return &client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		tables: filter,
	}
}

func (c *client) wants(table string) bool {
	if len(c.tables) == 0 {
		return true
	}
	_, ok := c.tables[table]
	return ok
}

// readPump drains inbound frames to keep pong handling alive. Clients send
// nothing meaningful; any read error ends the session.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
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
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
