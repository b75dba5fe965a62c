package stream

import (
	"encoding/json"
	"time"

	"github.com/rkarchen/okx-stream/internal/book"
)

// EventType discriminates events on the client's stream.
type EventType int

const (
	// EventPush is a non-book channel push; Data holds the raw payload.
	EventPush EventType = iota

	// EventBookUpdate carries a fresh order book snapshot after a
	// successful apply.
	EventBookUpdate

	// EventBookInvalid signals that a book diverged and a resync is in
	// flight; Book reads return ErrBookInvalid until the next snapshot.
	EventBookInvalid

	// EventSubscriptionRejected signals the server refused a subscribe
	// request; Err holds the rejection.
	EventSubscriptionRejected

	// EventConnectionUp and EventConnectionDown track transport state;
	// Conn names the connection.
	EventConnectionUp
	EventConnectionDown

	// EventAuthenticated and EventAuthFailed track the private login
	// handshake.
	EventAuthenticated
	EventAuthFailed
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventPush:
		return "push"
	case EventBookUpdate:
		return "book_update"
	case EventBookInvalid:
		return "book_invalid"
	case EventSubscriptionRejected:
		return "subscription_rejected"
	case EventConnectionUp:
		return "connection_up"
	case EventConnectionDown:
		return "connection_down"
	case EventAuthenticated:
		return "authenticated"
	case EventAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}

// Event is one entry on the client's event stream.
type Event struct {
	Type    EventType
	Conn    string // "public" or "private", set on connection events
	Channel string
	InstID  string
	Data    json.RawMessage // raw push payload, set on EventPush
	Book    *book.Snapshot  // set on EventBookUpdate
	Err     error           // set on rejection and auth failures
	At      time.Time
}
