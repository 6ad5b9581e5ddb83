package gatt

import "fmt"

// Status is an ATT-style result code.
type Status uint8

const (
	StatusOK                         Status = 0x00
	StatusReadNotPermitted           Status = 0x02
	StatusWriteNotPermitted          Status = 0x03
	StatusInsufficientAuthentication Status = 0x05
	StatusRequestNotSupported        Status = 0x06
	StatusAttributeNotFound          Status = 0x0A
	StatusInvalidLength              Status = 0x0D
	StatusUnlikely                   Status = 0x0E
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusReadNotPermitted:
		return "READ_NOT_PERMITTED"
	case StatusWriteNotPermitted:
		return "WRITE_NOT_PERMITTED"
	case StatusInsufficientAuthentication:
		return "INSUFFICIENT_AUTHENTICATION"
	case StatusRequestNotSupported:
		return "REQUEST_NOT_SUPPORTED"
	case StatusAttributeNotFound:
		return "ATTRIBUTE_NOT_FOUND"
	case StatusInvalidLength:
		return "INVALID_LENGTH"
	case StatusUnlikely:
		return "UNLIKELY"
	default:
		return fmt.Sprintf("STATUS(0x%02x)", uint8(s))
	}
}

// Err returns an error for non-OK statuses, nil otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError wraps a non-OK status returned by a peer.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "gatt: " + e.Status.String()
}
