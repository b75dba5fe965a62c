package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rkarchen/okx-stream/internal/wire"
)

// Client is a single WebSocket session. It runs three goroutines: a read
// loop, a write loop draining the outbound queue, and a heartbeat loop
// that detects silent failures the transport never reports.
type Client interface {
	// Connect establishes the WebSocket session and starts the loops.
	Connect(ctx context.Context) error

	// Close shuts the session down and releases the socket.
	Close() error

	// Send enqueues one text frame for transmission.
	Send(data []byte) error

	// Messages returns the channel of inbound frames.
	Messages() <-chan RawMessage

	// Errors returns the channel of fatal session errors.
	Errors() <-chan error

	// IsConnected reports whether the session is live.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Channels out
	messages chan RawMessage
	errors   chan error
	done     chan struct{}

	// Single-writer outbound queue. Only writeLoop touches the socket
	// for data frames.
	outbound chan []byte

	mu           sync.RWMutex
	connected    bool
	closed       bool
	lastActivity time.Time
}

// NewClient creates a WebSocket client for one session.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan RawMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		outbound: make(chan []byte, cfg.SendQueueSize),
	}
}

// Connect establishes the WebSocket session.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastActivity = time.Now()
	c.mu.Unlock()

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close shuts the session down on all exit paths.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send enqueues one text frame.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendQueueFull
	}
}

// Messages returns the inbound frame channel.
func (c *client) Messages() <-chan RawMessage {
	return c.messages
}

// Errors returns the fatal error channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected reports whether the session is live.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// fail reports a fatal session error once and marks the session down.
func (c *client) fail(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	select {
	case <-c.done:
	default:
		select {
		case c.errors <- err:
		default:
		}
	}
}

// touch records inbound activity for staleness detection.
func (c *client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// readLoop reads frames until the socket dies or the session closes.
func (c *client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.fail(err)
			return
		}

		c.touch()

		msg := RawMessage{Data: data, ReceivedAt: receivedAt}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping frame")
		}
	}
}

// writeLoop is the only goroutine that writes data frames to the socket,
// so outbound frames are never interleaved.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// heartbeatLoop sends a text ping after PingInterval of inbound silence
// and declares the session stale when no data (pong included) arrives
// within the grace window past the expected pong.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	var pingSent bool

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			idle := time.Since(c.lastActivity)
			connected := c.connected
			c.mu.RUnlock()

			if !connected {
				return
			}

			if idle < c.cfg.PingInterval {
				pingSent = false
				continue
			}

			if pingSent && idle > c.cfg.PingInterval+c.cfg.PongTimeout {
				c.logger.Warn("no inbound data after ping, connection stale",
					"idle", idle,
				)
				c.fail(ErrStaleConnection)
				return
			}

			if !pingSent {
				select {
				case c.outbound <- wire.Ping:
					pingSent = true
				default:
					c.logger.Debug("send queue full, skipping ping")
				}
			}
		}
	}
}

