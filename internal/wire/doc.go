// Package wire defines the JSON message shapes exchanged with the
// exchange WebSocket endpoints.
//
// Outbound control frames use an op/args envelope:
//
//	{"op":"subscribe","args":[{"channel":"books","instId":"BTC-USDT"}]}
//
// Inbound control frames use an event envelope:
//
//	{"event":"subscribe","arg":{"channel":"books","instId":"BTC-USDT"}}
//
// Channel data arrives as an arg+data push envelope, with an "action"
// discriminator on order-book channels. Heartbeats are bare "ping"/"pong"
// text frames outside the JSON envelope.
package wire
