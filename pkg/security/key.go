package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Digest constants.
const (
	// DigestSize is the length of an HMAC-SHA256 digest.
	DigestSize = sha256.Size

	// DerivedKeySize is the length of keys produced by DeriveKey.
	DerivedKeySize = 32
)

// DefaultKey is the placeholder key installed at initialization.
// Deployments replace it via KeyStore.SetKey.
var DefaultKey = []byte("fan12345")

// Key errors.
var (
	ErrEmptyKey = errors.New("key must not be empty")
)

// ComputeDigest returns HMAC-SHA256(key, nonce).
func ComputeDigest(key, nonce []byte) [DigestSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(nonce)

	var out [DigestSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// DeriveKey derives a DerivedKeySize key from a fleet secret and a per-device
// salt (usually the device ID) using HKDF-SHA256.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}

	reader := hkdf.New(sha256.New, secret, salt, []byte("fanlink device key"))
	key := make([]byte, DerivedKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// KeyStore holds the shared secret. The key never leaves the store; callers
// only get digests computed with it.
type KeyStore struct {
	mu  sync.RWMutex
	key []byte
}

// NewKeyStore creates a store holding a copy of key.
// A nil or empty key installs DefaultKey.
func NewKeyStore(key []byte) *KeyStore {
	if len(key) == 0 {
		key = DefaultKey
	}
	return &KeyStore{key: append([]byte(nil), key...)}
}

// SetKey replaces the key.
func (s *KeyStore) SetKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = append([]byte(nil), key...)
	return nil
}

// Digest computes the digest of nonce under the current key.
func (s *KeyStore) Digest(nonce []byte) [DigestSize]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeDigest(s.key, nonce)
}
