package security

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTable(t *testing.T, cfg TableConfig) (*Table, *fakeClock) {
	t.Helper()
	tbl, err := NewTable(NewKeyStore([]byte("secret")), cfg)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tbl.timeNow = clock.Now
	return tbl, clock
}

func issuedNonce(t *testing.T, tbl *Table, conn ConnID) []byte {
	t.Helper()
	nonce, ok := tbl.Nonce(conn)
	require.True(t, ok, "no nonce for conn %d", conn)
	return nonce
}

func TestTableUnauthenticatedByDefault(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())

	for _, conn := range []ConnID{0, 1, 7, 0xFFFF} {
		assert.False(t, tbl.IsAuthenticated(conn), "conn %d", conn)
	}
}

func TestTableOnConnectIssuesNonce(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())

	var gotConn ConnID
	var gotNonce []byte
	tbl.OnNonce(func(conn ConnID, nonce []byte) {
		gotConn = conn
		gotNonce = nonce
	})

	require.NoError(t, tbl.OnConnect(3))
	assert.Equal(t, ConnID(3), gotConn)
	assert.Len(t, gotNonce, DefaultNonceLength)
	assert.Equal(t, issuedNonce(t, tbl, 3), gotNonce)
	assert.False(t, tbl.IsAuthenticated(3))

	// Notified slice is a copy.
	gotNonce[0] ^= 0xFF
	assert.NotEqual(t, gotNonce, issuedNonce(t, tbl, 3))
}

func TestTableOnConnectRejectsZeroHandle(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	assert.ErrorIs(t, tbl.OnConnect(0), ErrInvalidConnection)
}

func TestTableVerifyResponse(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))

	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))
	require.NoError(t, tbl.VerifyResponse(1, digest[:]))

	assert.True(t, tbl.IsAuthenticated(1))
	assert.True(t, tbl.Methods(1).Has(MethodNonceHMAC))
}

func TestTableVerifyResponseWrongKey(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))

	digest := ComputeDigest([]byte("other"), issuedNonce(t, tbl, 1))
	assert.ErrorIs(t, tbl.VerifyResponse(1, digest[:]), ErrDigestMismatch)
	assert.False(t, tbl.IsAuthenticated(1))
}

func TestTableVerifyResponseWrongNonce(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	require.NoError(t, tbl.OnConnect(2))

	// A digest over another connection's nonce must not work.
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 2))
	assert.ErrorIs(t, tbl.VerifyResponse(1, digest[:]), ErrDigestMismatch)
	assert.False(t, tbl.IsAuthenticated(1))
}

func TestTableVerifyResponseBitFlips(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	good := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))

	for byteIdx := 0; byteIdx < DigestSize; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			flipped := good
			flipped[byteIdx] ^= 1 << bit
			err := tbl.VerifyResponse(1, flipped[:])
			if !errors.Is(err, ErrDigestMismatch) {
				t.Fatalf("flip byte %d bit %d: err = %v, want ErrDigestMismatch", byteIdx, bit, err)
			}
		}
	}
	assert.False(t, tbl.IsAuthenticated(1))
}

func TestTableVerifyResponseComparesAllBytes(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	good := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))

	var counts []int
	tbl.compared = func(n int) { counts = append(counts, n) }

	// Mismatch in the first byte, the middle, the last byte, and none at all.
	for _, idx := range []int{0, 15, 31, -1} {
		d := good
		if idx >= 0 {
			d[idx] ^= 0x01
		}
		_ = tbl.VerifyResponse(1, d[:])
	}

	assert.Equal(t, []int{DigestSize, DigestSize, DigestSize, DigestSize}, counts)
}

func TestTableVerifyResponseInvalidLength(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))

	for _, n := range []int{0, 16, 31, 33, 64} {
		err := tbl.VerifyResponse(1, make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidDigestLength, "len %d", n)
	}
}

func TestTableVerifyResponseUnknownConnection(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	assert.ErrorIs(t, tbl.VerifyResponse(9, make([]byte, DigestSize)), ErrUnknownConnection)
}

func TestTableVerifyResponseExpired(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))

	clock.Advance(DefaultNonceLifetime + time.Millisecond)

	assert.ErrorIs(t, tbl.VerifyResponse(1, digest[:]), ErrNonceExpired)
	assert.False(t, tbl.IsAuthenticated(1))
}

func TestTableVerifyResponseAtLifetimeBoundary(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))

	clock.Advance(DefaultNonceLifetime)
	assert.NoError(t, tbl.VerifyResponse(1, digest[:]))
}

func TestTableAuthenticationLapses(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))
	require.NoError(t, tbl.VerifyResponse(1, digest[:]))

	clock.Advance(DefaultNonceLifetime - time.Second)
	assert.True(t, tbl.IsAuthenticated(1))

	clock.Advance(2 * time.Second)
	assert.False(t, tbl.IsAuthenticated(1))
}

func TestTableReconnectIssuesFreshNonce(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	old := issuedNonce(t, tbl, 1)
	oldDigest := ComputeDigest([]byte("secret"), old)
	require.NoError(t, tbl.VerifyResponse(1, oldDigest[:]))

	clock.Advance(DefaultNonceLifetime + time.Second)
	require.NoError(t, tbl.OnConnect(1))

	fresh := issuedNonce(t, tbl, 1)
	assert.False(t, bytes.Equal(old, fresh))
	assert.False(t, tbl.IsAuthenticated(1), "new nonce must drop previous authentication")
	assert.ErrorIs(t, tbl.VerifyResponse(1, oldDigest[:]), ErrDigestMismatch)

	freshDigest := ComputeDigest([]byte("secret"), fresh)
	assert.NoError(t, tbl.VerifyResponse(1, freshDigest[:]))
	assert.Equal(t, 1, tbl.Len())
}

func TestTableClear(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(1))
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))
	require.NoError(t, tbl.VerifyResponse(1, digest[:]))

	tbl.Clear(1)

	assert.False(t, tbl.IsAuthenticated(1))
	_, ok := tbl.Nonce(1)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
	assert.ErrorIs(t, tbl.VerifyResponse(1, digest[:]), ErrUnknownConnection)

	// Clearing unknown connections is a no-op.
	tbl.Clear(42)
	tbl.Clear(0)
}

func TestTableFullFailsClosed(t *testing.T) {
	cfg := DefaultTableConfig()
	cfg.Capacity = 2
	tbl, _ := newTestTable(t, cfg)

	require.NoError(t, tbl.OnConnect(1))
	require.NoError(t, tbl.OnConnect(2))
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 1))
	require.NoError(t, tbl.VerifyResponse(1, digest[:]))

	assert.ErrorIs(t, tbl.OnConnect(3), ErrTableFull)
	assert.False(t, tbl.IsAuthenticated(3))
	assert.ErrorIs(t, tbl.MarkAuthenticated(3, MethodPassphrase), ErrTableFull)
	assert.False(t, tbl.IsAuthenticated(3))

	// Existing entries are not evicted.
	assert.True(t, tbl.IsAuthenticated(1))

	// A freed slot is reusable.
	tbl.Clear(2)
	assert.NoError(t, tbl.OnConnect(3))
}

func TestTableMarkAuthenticated(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())

	require.NoError(t, tbl.MarkAuthenticated(5, MethodPassphrase))
	assert.True(t, tbl.IsAuthenticated(5))
	assert.Equal(t, MethodPassphrase, tbl.Methods(5))

	// Both paths can be recorded at once.
	digest := ComputeDigest([]byte("secret"), issuedNonce(t, tbl, 5))
	require.NoError(t, tbl.VerifyResponse(5, digest[:]))
	assert.Equal(t, MethodPassphrase|MethodNonceHMAC, tbl.Methods(5))

	clock.Advance(DefaultNonceLifetime + time.Second)
	assert.False(t, tbl.IsAuthenticated(5))

	assert.ErrorIs(t, tbl.MarkAuthenticated(0, MethodPassphrase), ErrInvalidConnection)
}

func TestTableMarkAuthenticatedAfterIdle(t *testing.T) {
	tbl, clock := newTestTable(t, DefaultTableConfig())
	require.NoError(t, tbl.OnConnect(7))

	clock.Advance(DefaultNonceLifetime + time.Minute)
	require.NoError(t, tbl.MarkAuthenticated(7, MethodPassphrase))
	assert.True(t, tbl.IsAuthenticated(7))
	assert.Equal(t, MethodPassphrase, tbl.Methods(7))

	clock.Advance(DefaultNonceLifetime - time.Second)
	assert.True(t, tbl.IsAuthenticated(7))
	clock.Advance(2 * time.Second)
	assert.False(t, tbl.IsAuthenticated(7))
}

func TestTableNonceLength(t *testing.T) {
	cfg := DefaultTableConfig()
	cfg.NonceLength = MaxNonceLength
	tbl, _ := newTestTable(t, cfg)
	require.NoError(t, tbl.OnConnect(1))
	assert.Len(t, issuedNonce(t, tbl, 1), MaxNonceLength)

	require.NoError(t, tbl.SetNonceLength(8))
	require.NoError(t, tbl.OnConnect(2))
	assert.Len(t, issuedNonce(t, tbl, 2), 8)

	assert.ErrorIs(t, tbl.SetNonceLength(0), ErrInvalidNonceLength)
	assert.ErrorIs(t, tbl.SetNonceLength(MaxNonceLength+1), ErrInvalidNonceLength)

	cfg.NonceLength = MaxNonceLength + 1
	_, err := NewTable(NewKeyStore(nil), cfg)
	assert.ErrorIs(t, err, ErrInvalidNonceLength)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestTableNonceGenerationFailure(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())
	tbl.random = failingReader{}

	notified := false
	tbl.OnNonce(func(ConnID, []byte) { notified = true })

	assert.Error(t, tbl.OnConnect(1))
	assert.False(t, notified)
	assert.False(t, tbl.IsAuthenticated(1))
	assert.ErrorIs(t, tbl.VerifyResponse(1, make([]byte, DigestSize)), ErrUnknownConnection)
}

func TestTableKeyRotation(t *testing.T) {
	keys := NewKeyStore([]byte("old"))
	tbl, err := NewTable(keys, DefaultTableConfig())
	require.NoError(t, err)
	require.NoError(t, tbl.OnConnect(1))
	nonce := issuedNonce(t, tbl, 1)

	require.NoError(t, keys.SetKey([]byte("new")))

	oldDigest := ComputeDigest([]byte("old"), nonce)
	assert.ErrorIs(t, tbl.VerifyResponse(1, oldDigest[:]), ErrDigestMismatch)

	newDigest := ComputeDigest([]byte("new"), nonce)
	assert.NoError(t, tbl.VerifyResponse(1, newDigest[:]))
}

func TestTableConcurrentConnections(t *testing.T) {
	tbl, _ := newTestTable(t, DefaultTableConfig())

	var wg sync.WaitGroup
	for i := 1; i <= DefaultCapacity; i++ {
		wg.Add(1)
		go func(conn ConnID) {
			defer wg.Done()
			for round := 0; round < 50; round++ {
				if err := tbl.OnConnect(conn); err != nil {
					t.Errorf("conn %d: OnConnect: %v", conn, err)
					return
				}
				nonce, ok := tbl.Nonce(conn)
				if !ok {
					t.Errorf("conn %d: missing nonce", conn)
					return
				}
				d := ComputeDigest([]byte("secret"), nonce)
				if err := tbl.VerifyResponse(conn, d[:]); err != nil {
					t.Errorf("conn %d: VerifyResponse: %v", conn, err)
					return
				}
				tbl.Clear(conn)
			}
		}(ConnID(i))
	}
	wg.Wait()

	assert.Equal(t, 0, tbl.Len())
}
