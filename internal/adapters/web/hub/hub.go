// Package hub streams threat events, policy decisions and operator
// notifications to websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to connected clients. A client that cannot keep up
// is disconnected rather than slowing the others.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

var (
	_ ports.EventPublisher   = (*Hub)(nil)
	_ ports.ActionDispatcher = (*Hub)(nil)
)

// New creates a hub. Browser origins other than allowedOrigins are rejected;
// requests without an Origin header are always accepted.
func New(logger *slog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{logger: logger, clients: make(map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			logger.Warn("websocket origin rejected", "origin", origin)
			return false
		},
	}
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("websocket connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)
	go h.readLoop(c)
}

// readLoop discards client input and unregisters on disconnect.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) PublishEvent(_ context.Context, event domain.ThreatEvent) error {
	return h.Broadcast(Message{Type: "event", Payload: event})
}

func (h *Hub) PublishDecision(_ context.Context, decision domain.PolicyDecision) error {
	return h.Broadcast(Message{Type: "decision", Payload: decision})
}

// Dispatch delivers a NOTIFY action to connected operators. With nobody
// connected the notification is reported as failed.
func (h *Hub) Dispatch(_ context.Context, req domain.DispatchRequest) domain.DispatchOutcome {
	out := domain.DispatchOutcome{DispatchID: req.ID, At: time.Now().UTC()}
	if h.Clients() == 0 {
		out.Status = domain.DispatchFailed
		out.Reason = "no operator connected"
		return out
	}
	if err := h.Broadcast(Message{Type: "notify", Payload: req}); err != nil {
		out.Status = domain.DispatchFailed
		out.Reason = err.Error()
		return out
	}
	out.Status = domain.DispatchCompleted
	return out
}
