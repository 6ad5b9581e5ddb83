package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/gatt"
)

// fieldOf returns the control field behind a control or status
// characteristic.
func fieldOf(c gatt.Characteristic) (control.Field, bool) {
	switch {
	case c >= gatt.CharControlSpeed && c <= gatt.CharControlPower:
		return control.Field(c - gatt.CharControlSpeed), true
	case c >= gatt.CharStatusSpeed && c <= gatt.CharStatusPower:
		return control.Field(c - gatt.CharStatusSpeed), true
	}
	return 0, false
}

// parseCharacteristic accepts a name ("status_speed") or a handle ("0x20").
func parseCharacteristic(s string) (gatt.Characteristic, error) {
	if c, ok := gatt.ParseCharacteristic(strings.ToLower(s)); ok {
		return c, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || !gatt.Characteristic(n).Known() {
		return 0, fmt.Errorf("unknown characteristic %q", s)
	}
	return gatt.Characteristic(n), nil
}

// encodeWriteValue turns a command-line argument into the bytes to write.
// Control characteristics take a decimal number; anything else takes text,
// or raw bytes with a "hex:" prefix.
func encodeWriteValue(c gatt.Characteristic, arg string) ([]byte, error) {
	if f, ok := fieldOf(c); ok {
		v, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", f, arg)
		}
		return gatt.EncodeValue(f, uint32(v)), nil
	}
	if rest, ok := strings.CutPrefix(arg, "hex:"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid hex value: %w", err)
		}
		return b, nil
	}
	return []byte(arg), nil
}

// formatValue renders a characteristic value for display.
func formatValue(c gatt.Characteristic, value []byte) string {
	if f, ok := fieldOf(c); ok {
		if v, ok := gatt.DecodeValue(f, value); ok {
			return fmt.Sprintf("%s=%d", f, v)
		}
	}
	if len(value) > 0 && utf8.Valid(value) && isPrintable(value) {
		return strconv.Quote(string(value))
	}
	return hex.EncodeToString(value)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// parseAssignments parses "speed=120 angle=45" style arguments.
func parseAssignments(args []string) (map[string]int64, error) {
	values := make(map[string]int64, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		f, err := control.ParseField(name)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", f, raw)
		}
		values[f.String()] = v
	}
	return values, nil
}
