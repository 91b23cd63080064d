// Package ws streams relay ticks to downstream WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/sudarshan/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps incoming control messages.
	maxMessageSize = 4096

	// sendBufferSize is the outgoing queue per client.
	sendBufferSize = 256

	allInstruments = "*"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TickSource is where the hub takes ticks from.
type TickSource interface {
	Subscribe(ctx context.Context) <-chan domain.Tick
}

// StatusFunc reports a snapshot sent to each client on connect.
type StatusFunc func() map[string]any

// client is one downstream connection. subs holds instrument keys such as
// "NSE_FNO:49081"; a trailing "*" matches by prefix.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// filterMsg changes which instruments a client receives.
type filterMsg struct {
	Action      string   `json:"action"` // "subscribe" or "unsubscribe"
	Instruments []string `json:"instruments"`
}

type tickMsg struct {
	key  string
	data []byte
}

// Hub fans ticks out to every connected client whose filter matches.
type Hub struct {
	source     TickSource
	status     StatusFunc
	clients    map[*client]bool
	broadcast  chan tickMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub over source. status may be nil.
func NewHub(source TickSource, status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		source:     source,
		status:     status,
		clients:    make(map[*client]bool),
		broadcast:  make(chan tickMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run is the hub event loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.pump(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.String("client", c.id), slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.String("client", c.id), slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg.key) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Debug("dropping tick for slow client", slog.String("client", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pump moves ticks from the source into the broadcast loop.
func (h *Hub) pump(ctx context.Context) {
	for tick := range h.source.Subscribe(ctx) {
		data, err := json.Marshal(tick)
		if err != nil {
			continue
		}
		select {
		case h.broadcast <- tickMsg{key: tick.Key(), data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. The optional
// "instruments" query parameter (comma separated keys) sets the initial
// filter; without it the client receives every tick.
// GET /ws/ticks
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if q := r.URL.Query().Get("instruments"); q != "" {
		for _, k := range strings.Split(q, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.subs[k] = true
			}
		}
	} else {
		c.subs[allInstruments] = true
	}

	// Queued before register: once Run owns the client it may close send.
	c.sendHello()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", slog.String("client", c.id), slog.String("error", err.Error()))
			}
			return
		}

		var msg filterMsg
		if json.Unmarshal(message, &msg) == nil && msg.Action != "" {
			c.applyFilter(msg)
		}
	}
}

func (c *client) applyFilter(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, k := range msg.Instruments {
			c.subs[k] = true
		}
	case "unsubscribe":
		for _, k := range msg.Instruments {
			delete(c.subs, k)
		}
	}
}

// wants reports whether key passes the client's filter.
func (c *client) wants(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[allInstruments] || c.subs[key] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// sendHello queues a status envelope so clients can mark the stream live
// before the first tick arrives.
func (c *client) sendHello() {
	var payload map[string]any
	if c.hub.status != nil {
		payload = c.hub.status()
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["uptime_seconds"] = int64(time.Since(c.hub.startedAt).Seconds())

	msg, err := json.Marshal(map[string]any{"type": "hello", "payload": payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
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
