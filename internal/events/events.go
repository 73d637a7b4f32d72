// Package events fans transfer changes out to connected WebSocket clients.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
)

// Event types.
const (
	TransferCreated   = "transfer.created"
	TransferApproved  = "transfer.approved"
	TransferRejected  = "transfer.rejected"
	TransferConfirmed = "transfer.confirmed"
)

// Event is one message on the feed. Audience lists the user ids that may see
// it; admins see every event.
type Event struct {
	Type     string                 `json:"type"`
	Transfer *model.TransferRequest `json:"transfer,omitempty"`
	At       time.Time              `json:"at"`
	Audience []string               `json:"-"`
}

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

type client struct {
	userID string
	admin  bool
	conn   *websocket.Conn
	send   chan *Event
}

func (c *client) wants(ev *Event) bool {
	return c.admin || slices.Contains(ev.Audience, c.userID)
}

// Hub tracks connected clients and routes events to them.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan *Event
	metrics    *metrics.Metrics
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub returns a hub. Run must be started before clients connect.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *Event, 256),
		metrics:    m,
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
	}
}

// Run routes events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.metrics.EventClients(1)
			slog.Debug("event client connected", "user", c.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.metrics.EventClients(-1)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- ev:
				default:
					// Slow client; drop it rather than block the feed.
					delete(h.clients, c)
					close(c.send)
					h.metrics.EventClients(-1)
					slog.Warn("dropping slow event client", "user", c.userID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues ev for delivery. It never blocks; events are dropped when
// the queue is full.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- &ev:
	default:
		slog.Warn("event queue full, dropping event", "type", ev.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events for the principal until the
// connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, p *model.Principal) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		userID: p.UserID,
		admin:  p.IsAdmin(),
		conn:   conn,
		send:   make(chan *Event, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "user", c.userID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
