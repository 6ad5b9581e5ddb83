package discovery

import (
	"errors"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a device.
	ServiceType = "_fanlink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default device port.
	DefaultPort = 7420

	// InstancePrefix precedes the device id in instance names.
	InstancePrefix = "FanLink-"
)

// TXT record keys.
const (
	TXTKeyID     = "id"
	TXTKeyVer    = "ver"
	TXTKeyAuth   = "auth"
	TXTKeyWSPath = "ws"
	TXTKeyName   = "name"
)

// Authentication method names used in the auth TXT key.
const (
	AuthHMAC       = "hmac"
	AuthPassphrase = "passphrase"
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400

	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// Info is what a device advertises.
type Info struct {
	// DeviceID identifies the device. Required.
	DeviceID string

	// Version is the protocol version string. Required.
	Version string

	// AuthMethods lists the supported authentication methods.
	AuthMethods []string

	// WebSocketPath is the WebSocket endpoint path on Port; empty if the
	// endpoint is disabled.
	WebSocketPath string

	// Name is an optional user-facing name.
	Name string

	// Port is the TCP port. Zero selects DefaultPort.
	Port uint16
}

// InstanceName returns the DNS-SD instance name for info.
func (i *Info) InstanceName() string {
	name := InstancePrefix + i.DeviceID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// Service is a discovered device.
type Service struct {
	Info

	InstanceName string
	Host         string
	Addresses    []string
}
