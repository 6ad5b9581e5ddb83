package security

import "strings"

// AuthMethod identifies how a connection authenticated. Values are bit flags;
// an entry may carry several.
type AuthMethod uint8

const (
	// MethodNonceHMAC is a verified HMAC-SHA256 response over the issued nonce.
	MethodNonceHMAC AuthMethod = 1 << iota

	// MethodPassphrase is a matching device pass-phrase submission.
	MethodPassphrase
)

// Has reports whether all bits of m are set.
func (a AuthMethod) Has(m AuthMethod) bool {
	return m != 0 && a&m == m
}

// String returns a human-readable method list.
func (a AuthMethod) String() string {
	if a == 0 {
		return "NONE"
	}
	var parts []string
	if a.Has(MethodNonceHMAC) {
		parts = append(parts, "NONCE_HMAC")
	}
	if a.Has(MethodPassphrase) {
		parts = append(parts, "PASSPHRASE")
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}
