// Package discovery advertises and browses FanLink devices over mDNS/DNS-SD.
//
// Devices register one instance of _fanlink._tcp named "FanLink-<id>". The
// TXT record carries:
//   - id: device identifier
//   - ver: protocol version (major.minor)
//   - auth: comma-separated authentication methods (hmac, passphrase)
//   - ws: WebSocket path, when the WebSocket endpoint is enabled
//   - name: optional user-facing device name
package discovery
