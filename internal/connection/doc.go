// Package connection implements the Connection Manager component.
//
// A Manager owns one physical WebSocket session and keeps it alive:
//   - dial, single-writer outbound queue, blocking read loop
//   - text-frame ping/pong heartbeat with staleness detection
//   - unbounded reconnection with capped exponential backoff
//   - state-change notifications so subscriptions and logins can be
//     re-established after every reconnect
//
// Raw inbound frames are handed to the Message Router unparsed.
package connection
