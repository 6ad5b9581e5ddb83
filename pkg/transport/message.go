package transport

import (
	"errors"
	"fmt"

	"github.com/fanlink/fanlink-go/pkg/gatt"
)

// Op is a request operation.
type Op uint8

const (
	OpRead  Op = 1
	OpWrite Op = 2
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return fmt.Sprintf("OP(%d)", uint8(o))
	}
}

// Server message kinds (first byte).
const (
	KindResponse     byte = 0x00
	KindNotification byte = 0x01
)

// Message errors.
var (
	ErrShortMessage = errors.New("message too short")
	ErrUnknownOp    = errors.New("unknown operation")
	ErrUnknownKind  = errors.New("unknown message kind")
)

// Request is a client request.
type Request struct {
	Op      Op
	Char    gatt.Characteristic
	Payload []byte
}

// EncodeRequest encodes r.
func EncodeRequest(r Request) []byte {
	buf := make([]byte, 2+len(r.Payload))
	buf[0] = byte(r.Op)
	buf[1] = byte(r.Char)
	copy(buf[2:], r.Payload)
	return buf
}

// DecodeRequest decodes a request. The payload aliases data.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) < 2 {
		return Request{}, ErrShortMessage
	}
	op := Op(data[0])
	if op != OpRead && op != OpWrite {
		return Request{}, fmt.Errorf("%w: %d", ErrUnknownOp, data[0])
	}
	return Request{Op: op, Char: gatt.Characteristic(data[1]), Payload: data[2:]}, nil
}

// EncodeResponse encodes a response.
func EncodeResponse(status gatt.Status, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	buf[0] = KindResponse
	buf[1] = byte(status)
	copy(buf[2:], payload)
	return buf
}

// EncodeNotification encodes a notification.
func EncodeNotification(char gatt.Characteristic, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	buf[0] = KindNotification
	buf[1] = byte(char)
	copy(buf[2:], payload)
	return buf
}

// Notification is a value pushed by the device.
type Notification struct {
	Char  gatt.Characteristic
	Value []byte
}

// ServerMessage is a decoded response or notification. Status is set for
// responses, Char for notifications.
type ServerMessage struct {
	Kind    byte
	Status  gatt.Status
	Char    gatt.Characteristic
	Payload []byte
}

// DecodeServerMessage decodes a message sent by the device.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	if len(data) < 2 {
		return ServerMessage{}, ErrShortMessage
	}
	msg := ServerMessage{Kind: data[0], Payload: data[2:]}
	switch data[0] {
	case KindResponse:
		msg.Status = gatt.Status(data[1])
	case KindNotification:
		msg.Char = gatt.Characteristic(data[1])
	default:
		return ServerMessage{}, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, data[0])
	}
	return msg, nil
}
