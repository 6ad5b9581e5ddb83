package gatt

import (
	"encoding/binary"
	"math"

	"github.com/fanlink/fanlink-go/pkg/control"
)

// EncodeValue encodes v for field. Light and power saturate at 255.
func EncodeValue(f control.Field, v uint32) []byte {
	if ValueSize(f) == 1 {
		if v > math.MaxUint8 {
			v = math.MaxUint8
		}
		return []byte{byte(v)}
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// DecodeValue decodes a field value. ok is false on a size mismatch.
func DecodeValue(f control.Field, b []byte) (uint32, bool) {
	if len(b) != ValueSize(f) {
		return 0, false
	}
	if len(b) == 1 {
		return uint32(b[0]), true
	}
	return binary.LittleEndian.Uint32(b), true
}
