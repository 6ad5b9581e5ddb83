package packet

import (
	"bytes"
	"strconv"
	"strings"
)

// Parse classifies raw. Input is cut at the first NUL byte.
func Parse(raw []byte) Intent {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return Unrecognized()
	}

	if intent, ok := ParseStructured(text); ok {
		return intent
	}
	return ParseFallback(text)
}

// parseInt reads an atoi-style integer: optional surrounding whitespace,
// quotes, braces or commas, an optional '-', then decimal digits up to the
// first non-digit. Values outside the int32 range are rejected.
func parseInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\r\n\"'{},")
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

// asciiLower lowers ASCII letters only, keeping byte offsets aligned with s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
