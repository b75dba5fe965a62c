package router

import (
	"encoding/json"
	"time"

	"github.com/rkarchen/okx-stream/internal/wire"
)

// Kind classifies one inbound frame.
type Kind int

const (
	KindPong Kind = iota
	KindLoginAck
	KindSubscribeAck
	KindUnsubscribeAck
	KindSubscribeError
	KindChannelPush
	KindServerError
	KindUnknownControl
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPong:
		return "pong"
	case KindLoginAck:
		return "login_ack"
	case KindSubscribeAck:
		return "subscribe_ack"
	case KindUnsubscribeAck:
		return "unsubscribe_ack"
	case KindSubscribeError:
		return "subscribe_error"
	case KindChannelPush:
		return "channel_push"
	case KindServerError:
		return "server_error"
	case KindUnknownControl:
		return "unknown_control"
	}
	return "invalid"
}

// AuthConsumer receives login acks.
type AuthConsumer interface {
	HandleLoginAck(ev wire.ControlEvent)
}

// SubscriptionConsumer receives subscription acks and errors, and gates
// push delivery on live subscriptions.
type SubscriptionConsumer interface {
	HandleSubscribeAck(ev wire.ControlEvent)
	HandleUnsubscribeAck(ev wire.ControlEvent)
	HandleSubscribeError(ev wire.ControlEvent)
	IsLive(arg wire.Arg) bool
}

// BookConsumer receives order-book channel pushes.
type BookConsumer interface {
	HandleBookPush(push wire.Push, receivedAt time.Time) error
}

// PushHandler receives non-book channel pushes.
type PushHandler func(push wire.Push, receivedAt time.Time)

// ErrorHandler receives server error frames not tied to a subscription.
type ErrorHandler func(code, msg string)

// Config wires a Router to its consumers. Auth, Books, OnPush, and
// OnServerError may be nil.
type Config struct {
	Auth          AuthConsumer
	Subscriptions SubscriptionConsumer
	Books         BookConsumer
	OnPush        PushHandler
	OnServerError ErrorHandler
}

// Stats is a point-in-time view of router counters.
type Stats struct {
	Received        int64
	Pongs           int64
	Pushes          int64
	ParseErrors     int64
	DroppedNoSub    int64
	ServerErrors    int64
	UnknownControls int64
}

// envelope is the superset of all inbound JSON frame shapes; one
// unmarshal is enough to classify any frame.
type envelope struct {
	Event  string          `json:"event"`
	Arg    wire.Arg        `json:"arg"`
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}
