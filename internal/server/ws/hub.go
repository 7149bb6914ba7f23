// Package ws pushes alerts and stream status to dashboard WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Topics a client can subscribe to. Both are on by default.
const (
	TopicAlerts = "alerts"
	TopicStatus = "status"
)

// Message types pushed to clients.
const (
	TypeAlert            = "alert"
	TypeConnectionStatus = "connection_status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is enforced by the CORS and auth middleware in front.
		return true
	},
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg is what a client sends to change its topics:
// {"action":"unsubscribe","topics":["status"]}
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type broadcastMsg struct {
	topic string
	data  []byte
}

// Config configures a Hub.
type Config struct {
	// Bus, when set, is the only source of alerts and status: the hub
	// relays AlertChannel and StatusChannel instead of being fed directly.
	Bus           domain.SignalBus
	AlertChannel  string
	StatusChannel string
	// Snapshot supplies the status pushed to each client on connect.
	Snapshot func() domain.ConnectionState
}

// Hub fans messages out to connected clients.
type Hub struct {
	cfg        Config
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Name implements alerts.Sink.
func (h *Hub) Name() string { return "ws" }

// Deliver implements alerts.Sink.
func (h *Hub) Deliver(ctx context.Context, a domain.AlertRecord) error {
	return h.publish(ctx, TopicAlerts, envelope{Type: TypeAlert, Payload: a})
}

// PublishStatus pushes a connection state change.
func (h *Hub) PublishStatus(ctx context.Context, st domain.ConnectionState) error {
	return h.publish(ctx, TopicStatus, envelope{Type: TypeConnectionStatus, Payload: st})
}

func (h *Hub) publish(ctx context.Context, topic string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ws: marshal %s: %w", env.Type, err)
	}
	select {
	case h.broadcast <- broadcastMsg{topic: topic, data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("ws: hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles registration and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if h.cfg.Bus != nil {
		if h.cfg.AlertChannel != "" {
			go h.relay(ctx, h.cfg.AlertChannel, TopicAlerts, TypeAlert)
		}
		if h.cfg.StatusChannel != "" {
			go h.relay(ctx, h.cfg.StatusChannel, TopicStatus, TypeConnectionStatus)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.topic) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("topic", msg.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards raw JSON published on a bus channel to local clients.
func (h *Hub) relay(ctx context.Context, channel, topic, msgType string) {
	msgCh, err := h.cfg.Bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("relay subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("relaying channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgCh:
			if !ok {
				h.logger.Warn("relay channel closed", slog.String("channel", channel))
				return
			}
			if err := h.publish(ctx, topic, envelope{Type: msgType, Payload: json.RawMessage(raw)}); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{TopicAlerts: true, TopicStatus: true},
	}

	// queued before registration: once registered, Run owns closing send
	c.sendInitialStatus()
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
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range msg.Topics {
		switch msg.Action {
		case "subscribe":
			c.subs[t] = true
		case "unsubscribe":
			delete(c.subs, t)
		}
	}
}

func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[topic]
}

// sendInitialStatus lets the dashboard render the stream state before the
// next change.
func (c *client) sendInitialStatus() {
	if c.hub.cfg.Snapshot == nil {
		return
	}
	msg, err := json.Marshal(envelope{Type: TypeConnectionStatus, Payload: c.hub.cfg.Snapshot()})
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
