// Package realtime pushes change events to admin UI clients over websockets
// so open list views refresh without polling.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/activesoft/go-backoffice/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin policy is enforced upstream; the hub carries no secrets.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans change events out to connected clients. A client may subscribe to
// a subset of tables via the ?tables= query parameter; no filter means all
// changes. Slow clients are dropped rather than allowed to stall the fanout.
type Hub struct {
	logger *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan events.Change
	clients    map[*client]struct{}
}

// NewHub builds an idle hub; call Run to start the fanout loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "realtime"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan events.Change, 64),
		clients:    make(map[*client]struct{}),
	}
}

// Run consumes change events until ctx is cancelled or changes closes. It
// owns the client set; ServeWS and the pumps only talk to it via channels.
func (h *Hub) Run(ctx context.Context, changes <-chan events.Change) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case change, ok := <-changes:
			if !ok {
				return
			}
			h.fanout(change)

		case change := <-h.broadcast:
			h.fanout(change)

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("client disconnected", "clients", len(h.clients))
		}
	}
}

// Broadcast enqueues one change for fanout. Used by tests and by callers
// that bypass the event bus.
func (h *Hub) Broadcast(change events.Change) {
	h.broadcast <- change
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, r.URL.Query()["tables"])
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (h *Hub) fanout(change events.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		h.logger.Warn("change event marshal failed", "error", err)
		return
	}
	for c := range h.clients {
		if !c.wants(change.Table) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Send buffer full: the client is not keeping up.
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow client")
		}
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
