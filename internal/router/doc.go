// Package router implements the Message Router.
//
// It classifies raw inbound frames into pongs, control acks, channel
// pushes, and server errors, and dispatches each to its consumer: the
// authenticator, the subscription registry, the order book engine, or the
// generic push sink. Malformed frames are counted and dropped; they never
// take the read loop down.
package router
