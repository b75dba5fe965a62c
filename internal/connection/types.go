package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound data)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSendQueueFull   = errors.New("send queue full")
)

// State is the lifecycle state of a managed connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// StateChange notifies observers of a lifecycle transition.
type StateChange struct {
	State State
	At    time.Time
}

// RawMessage is one inbound frame handed to the Message Router.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time // local timestamp when the read returned
}

// ClientConfig configures a single WebSocket session.
type ClientConfig struct {
	URL           string
	DialTimeout   time.Duration // handshake deadline
	PingInterval  time.Duration // idle time before a ping is sent
	PongTimeout   time.Duration // grace past the expected pong before the session is stale
	WriteTimeout  time.Duration // write deadline for outbound frames
	SendQueueSize int           // outbound queue depth
	BufferSize    int           // inbound message channel depth
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:   10 * time.Second,
		PingInterval:  15 * time.Second,
		PongTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		SendQueueSize: 256,
		BufferSize:    4096,
	}
}

// ManagerConfig configures a managed connection.
type ManagerConfig struct {
	Name   string // connection name for logs and metrics ("public", "private")
	Client ClientConfig

	ReconnectBaseDelay time.Duration // first backoff delay
	ReconnectMaxDelay  time.Duration // backoff cap
	StableResetAfter   time.Duration // uptime after which the backoff resets
	MessageBufferSize  int           // router-facing message channel depth
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:             DefaultClientConfig(),
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		StableResetAfter:   30 * time.Second,
		MessageBufferSize:  16384,
	}
}

// ManagerStats is a point-in-time view of a managed connection.
type ManagerStats struct {
	State            State
	Reconnects       int64
	MessagesReceived int64
	LastConnectedAt  time.Time
}
