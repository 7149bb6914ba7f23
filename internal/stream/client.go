// Package stream owns the single streaming session to the odds feed: dialing,
// heartbeats, liveness and reconnection. It knows nothing about odds; frames
// are handed to the caller on the Events channel.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/oddsync/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 1 << 20
)

// State is the transport state machine position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind tags an Event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventFrame
	EventClosed
	EventFailed
)

// Event is delivered on Client.Events in arrival order.
type Event struct {
	Kind       EventKind
	Frame      domain.Envelope
	ReceivedAt time.Time
	Err        error
}

// Config parameterizes a Client. Zero values fall back to defaults.
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	Backoff           BackoffPolicy
	MaxAttempts       int
	HandshakeTimeout  time.Duration
	EventBuffer       int
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Backoff == (BackoffPolicy{}) {
		c.Backoff = DefaultBackoff()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
}

// Client maintains one logical session with automatic recovery.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer
	events chan Event
	now    func() time.Time

	// baseCtx aborts in-flight dials on Disconnect.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	session        chan struct{} // closed when the current session ends
	attempts       int
	reconnectTimer *time.Timer
	lastBeatSent   time.Time
	status         domain.ConnectionState
	closed         bool

	writeMu sync.Mutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// Option customizes a Client.
type Option func(*Client)

// WithClock replaces time.Now for heartbeat and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns an idle client. Call Connect to start the session.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "stream")),
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		events:  make(chan Event, cfg.EventBuffer),
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
		status:  domain.ConnectionState{Status: domain.StatusDisconnected},
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Events returns the channel of transport events. It is never closed; stop
// reading once Disconnect has returned.
func (c *Client) Events() <-chan Event { return c.events }

// State returns the current state machine position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a copy of the connection state.
func (c *Client) Status() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the session. It is a no-op when already open or connecting.
// A dial failure is returned as a *domain.TransportError and also schedules a
// reconnect, exactly like an unexpected close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("stream: connect: %w", domain.ErrClientClosed)
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.state == StateFailed {
		c.attempts = 0
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	return c.dial(ctx)
}

// Send marshals v and writes it as one text frame. When the session is not
// open the frame is dropped with a warning and ErrNotOpen is returned.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal frame: %w", err)
	}

	c.mu.Lock()
	conn, open := c.conn, c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		c.logger.Warn("send while not open, frame dropped", slog.Int("bytes", len(data)))
		return domain.ErrNotOpen
	}
	return c.write(conn, data)
}

// RecordHeartbeat updates latency from an inbound heartbeat received at.
// Latency is measured against the previous outbound heartbeat.
func (c *Client) RecordHeartbeat(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastBeatSent.IsZero() {
		return
	}
	c.status.LatencyMs = at.Sub(c.lastBeatSent).Milliseconds()
}

// ReportRemoteError records an error frame from the server. The session is
// kept; status returns to connected on the next open.
func (c *Client) ReportRemoteError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Status = domain.StatusError
	c.status.LastError = msg
}

// Disconnect cancels pending timers, then closes the socket. Safe to call
// more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.setStateLocked(StateClosing)
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.endSessionLocked()
	c.cancel()
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.status.Status = domain.StatusDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (c *Client) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	stop := context.AfterFunc(c.baseCtx, cancel)
	conn, _, err := c.dialer.DialContext(dctx, c.cfg.URL, nil)
	stop()
	cancel()
	if err != nil {
		terr := &domain.TransportError{Op: "dial", Err: err}
		c.logger.Warn("dial failed", slog.String("url", c.cfg.URL), slog.String("error", err.Error()))
		c.handleDrop(nil, terr)
		return terr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream: connect: %w", domain.ErrClientClosed)
	}
	session := make(chan struct{})
	c.conn = conn
	c.session = session
	c.attempts = 0
	c.lastBeatSent = time.Time{}
	c.setStateLocked(StateOpen)
	c.status.Status = domain.StatusConnected
	c.status.ReconnectAttempts = 0
	c.status.LastError = ""
	c.mu.Unlock()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.logger.Info("stream connected", slog.String("url", c.cfg.URL))
	c.emit(Event{Kind: EventOpen, ReceivedAt: c.now()})

	go c.readLoop(conn, session)
	go c.heartbeatLoop(conn, session)
	return nil
}

// handleDrop tears down the session identified by session (nil for a failed
// dial) and schedules the next attempt or settles in Failed. Stale calls for
// a session that already ended are ignored.
func (c *Client) handleDrop(session chan struct{}, cause error) {
	c.mu.Lock()
	if c.closed || c.session != session {
		c.mu.Unlock()
		return
	}
	c.endSessionLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if cause != nil {
		c.status.LastError = cause.Error()
	}

	if c.attempts >= c.cfg.MaxAttempts {
		c.setStateLocked(StateFailed)
		c.status.Status = domain.StatusFailed
		attempts := c.attempts
		c.mu.Unlock()

		c.logger.Error("reconnect budget exhausted", slog.Int("attempts", attempts))
		c.emit(Event{Kind: EventFailed, ReceivedAt: c.now(), Err: cause})
		return
	}

	c.attempts++
	delay := c.cfg.Backoff.Jittered(c.attempts)
	c.setStateLocked(StateClosed)
	c.status.Status = domain.StatusDisconnected
	c.status.ReconnectAttempts = c.attempts
	c.reconnectTimer = time.AfterFunc(delay, c.retry)
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
	c.emit(Event{Kind: EventClosed, ReceivedAt: c.now(), Err: cause})
}

func (c *Client) retry() {
	c.mu.Lock()
	if c.closed || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	_ = c.dial(c.baseCtx)
}

// readLoop parses the envelope of every inbound frame and forwards it. A
// malformed frame is logged and dropped; the session continues.
func (c *Client) readLoop(conn *websocket.Conn, session chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.handleDrop(session, &domain.TransportError{Op: "read", Err: err})
			return
		}

		now := c.now()
		c.mu.Lock()
		c.status.LastMessageAt = now
		c.mu.Unlock()

		var env domain.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Type == "" {
			if err == nil {
				err = errors.New("missing frame type")
			}
			perr := &domain.ParseError{Raw: msg, Err: err}
			c.logger.Warn("dropping malformed frame", slog.String("error", perr.Error()))
			continue
		}
		c.emit(Event{Kind: EventFrame, Frame: env, ReceivedAt: now})
	}
}

// heartbeatLoop sends the JSON heartbeat on the configured interval and a
// websocket ping for keep-alive. It exits when the session ends.
func (c *Client) heartbeatLoop(conn *websocket.Conn, session chan struct{}) {
	beat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer beat.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	frame, _ := json.Marshal(domain.OutboundFrame{Type: domain.FrameHeartbeat})

	for {
		select {
		case <-session:
			return
		case <-beat.C:
			c.mu.Lock()
			c.lastBeatSent = c.now()
			c.mu.Unlock()
			if err := c.write(conn, frame); err != nil {
				c.logger.Warn("heartbeat write failed", slog.String("error", err.Error()))
				conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &domain.TransportError{Op: "write", Err: err}
	}
	return nil
}

// emit blocks until the consumer takes ev or the client shuts down.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// endSessionLocked stops the current session's heartbeat. Caller holds c.mu.
func (c *Client) endSessionLocked() {
	if c.session != nil {
		close(c.session)
		c.session = nil
	}
}

func (c *Client) setStateLocked(s State) {
	if s == StateConnecting {
		c.status.Status = domain.StatusConnecting
	}
	c.state = s
}
