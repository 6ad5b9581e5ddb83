package provision

import (
	"errors"
	"fmt"
)

// Record bounds.
const (
	MaxSSIDLen     = 32
	MaxPasswordLen = 64
)

// Record errors.
var (
	ErrEmptySSID       = errors.New("ssid is empty")
	ErrSSIDTooLong     = errors.New("ssid too long")
	ErrPasswordTooLong = errors.New("password too long")
)

// Record is one set of Wi-Fi credentials. It is passed by value; nothing
// shares its storage with the parser that produced it.
type Record struct {
	SSID     string `json:"ssid"`
	Password string `json:"password,omitempty"`
}

// SSIDLen returns the SSID length in bytes.
func (r Record) SSIDLen() int { return len(r.SSID) }

// PassLen returns the password length in bytes. Zero means an open network.
func (r Record) PassLen() int { return len(r.Password) }

// Validate checks the record bounds.
func (r Record) Validate() error {
	switch {
	case len(r.SSID) == 0:
		return ErrEmptySSID
	case len(r.SSID) > MaxSSIDLen:
		return fmt.Errorf("%w: %d bytes", ErrSSIDTooLong, len(r.SSID))
	case len(r.Password) > MaxPasswordLen:
		return fmt.Errorf("%w: %d bytes", ErrPasswordTooLong, len(r.Password))
	}
	return nil
}

// String returns a log-safe description; the password is never included.
func (r Record) String() string {
	return fmt.Sprintf("ssid=%q pass_len=%d", r.SSID, len(r.Password))
}
