// Package cert manages the device's self-signed TLS identity.
//
// Devices are not part of any PKI. Authentication happens above TLS through
// the nonce table, so TLS only provides confidentiality. Clients that want
// more than that pin the SHA-256 fingerprint of the device certificate,
// which the device logs at startup.
package cert
