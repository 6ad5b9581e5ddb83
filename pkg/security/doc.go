// Package security implements the challenge-response authentication used on
// every FanLink connection.
//
// # Overview
//
// When a connection is established the device issues a random nonce. The
// client proves possession of the shared secret by returning
// HMAC-SHA256(key, nonce). The Table tracks one entry per connection handle in
// a small fixed slot array:
//
//	conn handle -> {nonce, created at, authenticated methods}
//
// # Expiry
//
// Nonces live for NonceLifetime (default 5 minutes). The lifetime is checked at
// verification time and again on every IsAuthenticated query, so an
// authenticated session lapses silently when the window closes. Expired
// nonces are not regenerated automatically; the transport may call OnConnect
// again to issue a fresh one.
//
// # Authentication Methods
//
// Two independent paths can authenticate a connection:
//
//   - MethodNonceHMAC: a verified digest over the issued nonce
//   - MethodPassphrase: the fixed device pass-phrase (see package dispatch)
//
// A connection is authenticated if either path succeeded.
//
// # Capacity
//
// The table never evicts. When every slot is in use, OnConnect fails with
// ErrTableFull and the connection stays unauthenticated.
package security
