package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDigestMatchesHMAC(t *testing.T) {
	key := []byte("fan12345")
	nonce := []byte{0x01, 0x02, 0x03, 0x04}

	mac := hmac.New(sha256.New, key)
	mac.Write(nonce)
	want := mac.Sum(nil)

	got := ComputeDigest(key, nonce)
	assert.Equal(t, want, got[:])
}

func TestComputeDigestDeterministic(t *testing.T) {
	a := ComputeDigest([]byte("k"), []byte("nonce"))
	b := ComputeDigest([]byte("k"), []byte("nonce"))
	c := ComputeDigest([]byte("k2"), []byte("nonce"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKeyStoreDefaultKey(t *testing.T) {
	store := NewKeyStore(nil)
	nonce := []byte("abc")

	assert.Equal(t, ComputeDigest(DefaultKey, nonce), store.Digest(nonce))
}

func TestKeyStoreSetKey(t *testing.T) {
	store := NewKeyStore([]byte("first"))
	nonce := []byte("abc")

	require.NoError(t, store.SetKey([]byte("second")))
	assert.Equal(t, ComputeDigest([]byte("second"), nonce), store.Digest(nonce))

	assert.ErrorIs(t, store.SetKey(nil), ErrEmptyKey)
	assert.Equal(t, ComputeDigest([]byte("second"), nonce), store.Digest(nonce))
}

func TestKeyStoreCopiesKey(t *testing.T) {
	key := []byte("mutable")
	store := NewKeyStore(key)
	key[0] = 'X'

	assert.Equal(t, ComputeDigest([]byte("mutable"), []byte("n")), store.Digest([]byte("n")))
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey([]byte("fleet-secret"), []byte("device-1"))
	require.NoError(t, err)
	assert.Len(t, k1, DerivedKeySize)

	k1again, err := DeriveKey([]byte("fleet-secret"), []byte("device-1"))
	require.NoError(t, err)
	assert.Equal(t, k1, k1again)

	k2, err := DeriveKey([]byte("fleet-secret"), []byte("device-2"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	_, err = DeriveKey(nil, []byte("device-1"))
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestAuthMethodString(t *testing.T) {
	tests := []struct {
		m    AuthMethod
		want string
	}{
		{0, "NONE"},
		{MethodNonceHMAC, "NONCE_HMAC"},
		{MethodPassphrase, "PASSPHRASE"},
		{MethodNonceHMAC | MethodPassphrase, "NONCE_HMAC|PASSPHRASE"},
		{AuthMethod(0x80), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.m.String())
	}
}
