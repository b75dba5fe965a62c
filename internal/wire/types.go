package wire

import "encoding/json"

// Operations for outbound control frames.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpLogin       = "login"
)

// Events for inbound control frames.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventLogin       = "login"
	EventError       = "error"
)

// CodeOK is the success code carried by login and error acks.
const CodeOK = "0"

// Heartbeat frames. Sent and received as bare text, not JSON.
var (
	Ping = []byte("ping")
	Pong = []byte("pong")
)

// Channel names used by this client.
const (
	ChannelBooks   = "books"
	ChannelTickers = "tickers"
	ChannelTrades  = "trades"

	ChannelAccount            = "account"
	ChannelPositions          = "positions"
	ChannelOrders             = "orders"
	ChannelBalanceAndPosition = "balance_and_position"
)

// IsPrivate reports whether a channel requires an authenticated session.
func IsPrivate(channel string) bool {
	switch channel {
	case ChannelAccount, ChannelPositions, ChannelOrders, ChannelBalanceAndPosition:
		return true
	}
	return false
}

// Arg identifies a channel subscription scope: a channel name plus an
// instrument-level filter (instId) or an instrument-type filter (instType).
type Arg struct {
	Channel  string `json:"channel"`
	InstID   string `json:"instId,omitempty"`
	InstType string `json:"instType,omitempty"`
}

// Key returns the identity used to track this subscription.
func (a Arg) Key() string {
	return a.Channel + "/" + a.InstID + "/" + a.InstType
}

// Request is an outbound subscribe/unsubscribe frame.
type Request struct {
	Op   string `json:"op"`
	Args []Arg  `json:"args"`
}

// LoginRequest is the outbound login frame for private sessions.
type LoginRequest struct {
	Op   string     `json:"op"`
	Args []LoginArg `json:"args"`
}

// LoginArg carries one set of credentials plus a signature over the
// canonical login string.
type LoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// ControlEvent is an inbound control frame: subscribe/unsubscribe acks,
// login acks, and server errors.
type ControlEvent struct {
	Event  string `json:"event"`
	Arg    Arg    `json:"arg,omitempty"`
	Code   string `json:"code,omitempty"`
	Msg    string `json:"msg,omitempty"`
	ConnID string `json:"connId,omitempty"`
}

// Push is an inbound channel data frame. Action is set on order-book
// channels only ("snapshot" or "update").
type Push struct {
	Arg    Arg             `json:"arg"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Push actions on order-book channels.
const (
	ActionSnapshot = "snapshot"
	ActionUpdate   = "update"
)

// BookData is one entry of a books push. Levels are [price, size,
// deprecatedField, orderCount] string quadruples. Checksum is a signed
// 32-bit CRC over the top levels of both sides.
type BookData struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	TS        string     `json:"ts"`
	Checksum  int32      `json:"checksum"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
}
