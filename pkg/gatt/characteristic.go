package gatt

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/packet"
	"github.com/fanlink/fanlink-go/pkg/security"
	"github.com/fanlink/fanlink-go/pkg/version"
)

// Characteristic identifies an attribute on the transport.
type Characteristic uint8

const (
	CharNonce   Characteristic = 0x01
	CharAuthKey Characteristic = 0x02
	CharPacket  Characteristic = 0x03

	CharControlSpeed Characteristic = 0x10
	CharControlAngle Characteristic = 0x11
	CharControlLight Characteristic = 0x12
	CharControlPower Characteristic = 0x13

	CharStatusSpeed Characteristic = 0x20
	CharStatusAngle Characteristic = 0x21
	CharStatusLight Characteristic = 0x22
	CharStatusPower Characteristic = 0x23
)

// Characteristics lists every characteristic in handle order.
var Characteristics = []Characteristic{
	CharNonce, CharAuthKey, CharPacket,
	CharControlSpeed, CharControlAngle, CharControlLight, CharControlPower,
	CharStatusSpeed, CharStatusAngle, CharStatusLight, CharStatusPower,
}

var charNames = map[Characteristic]string{
	CharNonce:        "nonce",
	CharAuthKey:      "auth_key",
	CharPacket:       "packet",
	CharControlSpeed: "control_speed",
	CharControlAngle: "control_angle",
	CharControlLight: "control_light",
	CharControlPower: "control_power",
	CharStatusSpeed:  "status_speed",
	CharStatusAngle:  "status_angle",
	CharStatusLight:  "status_light",
	CharStatusPower:  "status_power",
}

// String returns the characteristic name.
func (c Characteristic) String() string {
	if name, ok := charNames[c]; ok {
		return name
	}
	return fmt.Sprintf("char(0x%02x)", uint8(c))
}

// ParseCharacteristic looks up a characteristic by name.
func ParseCharacteristic(name string) (Characteristic, bool) {
	for c, n := range charNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// ServiceUUID is the primary service advertised by BLE front ends.
var ServiceUUID = uuid.MustParse("f4a10000-6b1e-4c6a-9d0e-3a8f2b7c5e10")

// UUID derives the 128-bit characteristic UUID from ServiceUUID.
func (c Characteristic) UUID() uuid.UUID {
	u := ServiceUUID
	u[3] = byte(c)
	return u
}

// Known reports whether c is defined.
func (c Characteristic) Known() bool {
	_, ok := charNames[c]
	return ok
}

// Gated reports whether access requires an authenticated connection.
func (c Characteristic) Gated() bool {
	return c != CharNonce && c != CharAuthKey
}

// controlField maps control and status characteristics to their field.
func (c Characteristic) controlField() (control.Field, bool) {
	switch c {
	case CharControlSpeed, CharStatusSpeed:
		return control.FieldSpeed, true
	case CharControlAngle, CharStatusAngle:
		return control.FieldAngle, true
	case CharControlLight, CharStatusLight:
		return control.FieldLight, true
	case CharControlPower, CharStatusPower:
		return control.FieldPower, true
	}
	return 0, false
}

func (c Characteristic) isControl() bool {
	return c >= CharControlSpeed && c <= CharControlPower
}

func (c Characteristic) isStatus() bool {
	return c >= CharStatusSpeed && c <= CharStatusPower
}

// StatusCharacteristic returns the status characteristic for field.
func StatusCharacteristic(f control.Field) Characteristic {
	return CharStatusSpeed + Characteristic(f)
}

// ValueSize returns the encoded size of a field: 4 bytes for speed and angle,
// 1 byte for light and power.
func ValueSize(f control.Field) int {
	if f == control.FieldLight || f == control.FieldPower {
		return 1
	}
	return 4
}

// Describe returns the implemented characteristic table in profile form.
func Describe() []version.CharDef {
	defs := make([]version.CharDef, 0, len(Characteristics))
	for _, c := range Characteristics {
		def := version.CharDef{ID: uint8(c), Name: c.String(), Gated: c.Gated()}
		switch {
		case c == CharNonce:
			def.Access = []string{"read", "write", "notify"}
			def.MaxSize = security.DigestSize
		case c == CharAuthKey || c == CharPacket:
			def.Access = []string{"write"}
			def.MaxSize = packet.MaxSize
		case c.isControl():
			field, _ := c.controlField()
			def.Access = []string{"read", "write"}
			def.MaxSize = ValueSize(field)
		case c.isStatus():
			field, _ := c.controlField()
			def.Access = []string{"read", "notify"}
			def.MaxSize = ValueSize(field)
		}
		defs = append(defs, def)
	}
	return defs
}
