package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/rkarchen/okx-stream/internal/wire"
)

// Errors
var (
	// ErrNoPrivateSession means a private channel was requested but no
	// credentials were configured.
	ErrNoPrivateSession = errors.New("no private session configured")
)

// Subscription tracks one (channel, filter) pair.
type Subscription struct {
	Arg       wire.Arg
	Desired   bool // the caller wants this subscription
	Confirmed bool // the server has acked it on the current session
	Rejected  bool // the server refused it; never retried silently
	Private   bool
	CreatedAt time.Time
}

// Rejection is surfaced when the server refuses a subscribe request. The
// caller's desired state is left untouched; a rejected filter is never
// retried silently.
type Rejection struct {
	Arg  wire.Arg
	Code string
	Msg  string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("subscription rejected: channel=%s instId=%s code=%s msg=%s",
		r.Arg.Channel, r.Arg.InstID, r.Code, r.Msg)
}

// Sender enqueues one frame on a connection's outbound queue.
type Sender interface {
	Send(data []byte) error
}

// Config holds Subscription Registry tuning.
type Config struct {
	// MaxArgsPerFrame caps how many channel args ride in one subscribe
	// frame during replay.
	MaxArgsPerFrame int

	// RejectionBuffer is the rejection channel depth.
	RejectionBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxArgsPerFrame: 20,
		RejectionBuffer: 64,
	}
}

// Stats is a point-in-time view of registry state.
type Stats struct {
	Total     int
	Desired   int
	Confirmed int
	Replays   int64
	Rejected  int64
}
