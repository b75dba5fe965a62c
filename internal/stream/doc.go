// Package stream composes the connection managers, authenticator,
// subscription registry, message routers, and order book engine into the
// public client surface: subscribe/unsubscribe calls plus a consumable
// event stream of typed push messages and book-invalidation notices.
package stream
