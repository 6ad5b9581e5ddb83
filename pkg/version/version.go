// Package version provides protocol version parsing, comparison and the
// WebSocket subprotocol helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this module.
const Current = "1.0"

// subprotocolPrefix prefixes the negotiated WebSocket subprotocol.
const subprotocolPrefix = "fanlink/"

// ProtocolVersion is a parsed "major.minor" version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	mnr, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return ProtocolVersion{Major: uint16(maj), Minor: uint16(mnr)}, nil
}

// MustCurrent returns the parsed Current version.
func MustCurrent() ProtocolVersion {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other shares the major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Subprotocol returns the WebSocket subprotocol for a major version:
// "fanlink/N".
func Subprotocol(major uint16) string {
	return subprotocolPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromSubprotocol extracts the major version from a subprotocol.
func MajorFromSubprotocol(p string) (uint16, error) {
	suffix, ok := strings.CutPrefix(p, subprotocolPrefix)
	if !ok {
		return 0, fmt.Errorf("not a fanlink subprotocol: %q", p)
	}
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in subprotocol: %q", p)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in subprotocol %q: %w", p, err)
	}
	return uint16(major), nil
}

// SupportedSubprotocols lists the subprotocols this build accepts.
func SupportedSubprotocols() []string {
	return []string{Subprotocol(MustCurrent().Major)}
}
