// Package connection paces client reconnection attempts.
//
// A Backoff hands out exponentially growing delays with optional jitter.
// Retry runs a dial function until it succeeds, the context ends, or the
// attempt limit is reached.
package connection
