// Package book implements the Order Book Engine.
//
// Per instrument it reconstructs a bid/ask ladder from a full snapshot
// followed by in-order deltas, and verifies integrity after every delta
// with the CRC-32 checksum carried on book pushes. A diverged book is
// never repaired incrementally: it is discarded, marked invalid, and a
// resync request is emitted so the owner can re-subscribe the channel.
package book
