package packet

import (
	"strings"

	"github.com/fanlink/fanlink-go/pkg/control"
)

// Normalize prepares a fragment for the key scan. If the text contains a
// "},{" sequence (a wrapper such as {{Fan1},{...}}), everything before the
// last object's opening brace is dropped. A trailing run of closing braces
// is reduced to exactly one.
func Normalize(text string) string {
	s := text
	if i := strings.Index(s, "},{"); i >= 0 {
		s = s[i+2:]
	}
	s = strings.TrimRight(s, " \t\r\n")

	n := 0
	for n < len(s) && s[len(s)-1-n] == '}' {
		n++
	}
	if n > 1 {
		s = s[:len(s)-(n-1)]
	}
	return s
}

var (
	authKeyKeys  = []string{"authkey"}
	ssidKeys     = []string{"ssid"}
	passwordKeys = []string{"password", "pwd", "pass"}
)

// ParseFallback scans the normalized text for known keys, in precedence
// order. It never fails; unmatched input yields KindUnrecognized.
func ParseFallback(text string) Intent {
	s := Normalize(text)
	lower := asciiLower(s)

	var f fields
	if v, ok := scanString(s, lower, authKeyKeys); ok {
		f.authKey = v
		f.hasAuthKey = true
		return f.intent()
	}

	if strings.Contains(lower, "wifi") || strings.Contains(lower, "ssid") {
		f.wifi = true
		if v, ok := scanString(s, lower, ssidKeys); ok {
			f.ssid = v
			f.hasSSID = true
		} else if v, ok := scanString(s, lower, []string{"wifi"}); ok {
			f.wifiValue = v
		}
		f.password, _ = scanString(s, lower, passwordKeys)
		return f.intent()
	}

	for _, field := range control.Fields {
		if v, ok := scanInt(s, lower, field.String()); ok {
			f.setControl(field, v)
		}
	}
	return f.intent()
}

// valueStart returns the offset of the value belonging to the first
// occurrence of key, or -1. It skips a closing quote on the key and any
// ':', '=' or whitespace separators.
func valueStart(s, lower, key string) int {
	pos := strings.Index(lower, key)
	if pos < 0 {
		return -1
	}
	i := pos + len(key)

	if i < len(s) && isQuote(s[i]) {
		j := i + 1
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j < len(s) && (s[j] == ':' || s[j] == '=') {
			i++
		}
	}
	for i < len(s) && (s[i] == ':' || s[i] == '=' || isSpace(s[i])) {
		i++
	}
	return i
}

// scanString extracts the value of the first key found in keys. Braces
// around the value are skipped; a braced token followed by a separator is a
// nested key, not a value.
func scanString(s, lower string, keys []string) (string, bool) {
	for _, key := range keys {
		i := valueStart(s, lower, key)
		if i < 0 {
			continue
		}
		braced := false
		for i < len(s) && (s[i] == '{' || isSpace(s[i])) {
			braced = braced || s[i] == '{'
			i++
		}
		v, end := scanToken(s, i)
		if braced && followedBySeparator(s, end) {
			continue
		}
		return v, true
	}
	return "", false
}

// scanToken returns the string starting at i and the offset just past it.
// Quoted strings run to the matching quote; bare ones stop at whitespace,
// a comma, a closing brace or a quote.
func scanToken(s string, i int) (string, int) {
	if i < len(s) && isQuote(s[i]) {
		q := s[i]
		end := strings.IndexByte(s[i+1:], q)
		if end < 0 {
			return s[i+1:], len(s)
		}
		return s[i+1 : i+1+end], i + end + 2
	}
	end := i
	for end < len(s) && !isSpace(s[end]) && s[end] != ',' && s[end] != '}' && !isQuote(s[end]) {
		end++
	}
	return s[i:end], end
}

func followedBySeparator(s string, i int) bool {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i < len(s) && (s[i] == ':' || s[i] == '=')
}

func scanInt(s, lower, key string) (int64, bool) {
	i := valueStart(s, lower, key)
	if i < 0 {
		return 0, false
	}
	return parseInt(s[i:])
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }
