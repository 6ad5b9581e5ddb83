// Package transport carries characteristic accesses over TCP or WebSocket.
//
// # Protocol Stack
//
//	┌────────────────────────────────────┐
//	│  [op][char][payload] requests      │
//	├──────────────────┬─────────────────┤
//	│ Length prefix 4B │ WebSocket binary│
//	├──────────────────┼─────────────────┤
//	│ TCP (opt. TLS)   │ HTTP upgrade    │
//	└──────────────────┴─────────────────┘
//
// # Messages
//
// Requests are [op][char][payload] with op 1 (read) or 2 (write). The device
// answers each request in order with [0x00][status][payload]. Notifications
// may arrive between responses as [0x01][char][payload].
//
// Each accepted connection gets a non-zero uint16 handle, used as the key in
// the authentication table, and a UUID session id used in capture logs.
//
// # Keep-Alive
//
// WebSocket connections are pinged by the server. A connection that misses
// the pong deadline is closed, which also clears its authentication entry.
package transport
