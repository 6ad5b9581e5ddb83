package log

import "time"

// Event is one captured protocol event. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID is the UUID assigned to the connection by the transport.
	SessionID string `cbor:"2,keyasint"`

	// Handle is the connection handle used by the auth table.
	Handle uint16 `cbor:"3,keyasint,omitempty"`

	Direction Direction `cbor:"4,keyasint"`
	Layer     Layer     `cbor:"5,keyasint"`
	Category  Category  `cbor:"6,keyasint"`

	RemoteAddr string `cbor:"7,keyasint,omitempty"`
	DeviceID   string `cbor:"8,keyasint,omitempty"`

	// Exactly one payload is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Access      *AccessEvent      `cbor:"11,keyasint,omitempty"`
	Auth        *AuthEvent        `cbor:"12,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"13,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
}

// Direction indicates message flow relative to the local endpoint.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerGateway is the characteristic access layer.
	LayerGateway Layer = 1
	// LayerCommand is the parser and dispatcher.
	LayerCommand Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerGateway:
		return "GATEWAY"
	case LayerCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryFrame   Category = 0
	CategoryAccess  Category = 1
	CategoryAuth    Category = 2
	CategoryCommand Category = 3
	CategoryState   Category = 4
	CategoryError   Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryAccess:
		return "ACCESS"
	case CategoryAuth:
		return "AUTH"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw transport frame.
type FrameEvent struct {
	// Size is the frame size in bytes, excluding any length prefix.
	Size int `cbor:"1,keyasint"`

	// Data may be truncated; see MaxFrameCapture.
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const MaxFrameCapture = 256

// NewFrameEvent copies at most MaxFrameCapture bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	n := len(data)
	if n > MaxFrameCapture {
		n = MaxFrameCapture
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), data[:n]...)
	return fe
}

// AccessEvent captures one characteristic read, write or notification.
type AccessEvent struct {
	Operation      string `cbor:"1,keyasint"`
	Characteristic string `cbor:"2,keyasint"`
	Status         string `cbor:"3,keyasint,omitempty"`
	Size           int    `cbor:"4,keyasint,omitempty"`
}

// AuthEvent captures an authentication step.
type AuthEvent struct {
	// Step is "nonce-issued", "digest-verified", "passphrase" or "cleared".
	Step    string `cbor:"1,keyasint"`
	Method  string `cbor:"2,keyasint,omitempty"`
	Success bool   `cbor:"3,keyasint"`
	Reason  string `cbor:"4,keyasint,omitempty"`
}

// CommandEvent captures a parsed and dispatched packet.
type CommandEvent struct {
	Intent   string   `cbor:"1,keyasint"`
	Handled  bool     `cbor:"2,keyasint"`
	Applied  []string `cbor:"3,keyasint,omitempty"`
	Rejected []string `cbor:"4,keyasint,omitempty"`

	// Duration is the parse plus dispatch time in nanoseconds.
	Duration time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle and actuator changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntityControl    StateEntity = 1
	StateEntityUpdate     StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityControl:
		return "CONTROL"
	case StateEntityUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"3,keyasint,omitempty"`
}
