// Package metrics provides Prometheus metrics for operational visibility.
//
// Every recoverable error path in the client increments a counter here:
// reconnects, stale connections, parse failures, dropped frames, rejected
// subscriptions, login rejections, and order-book checksum mismatches.
package metrics
