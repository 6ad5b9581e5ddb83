package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Table constants.
const (
	// DefaultCapacity is the default number of connection slots.
	DefaultCapacity = 6

	// DefaultNonceLength is the default nonce length in bytes.
	DefaultNonceLength = 16

	// MaxNonceLength is the largest nonce a slot can hold.
	MaxNonceLength = 32

	// DefaultNonceLifetime is how long an issued nonce (and the
	// authentication it grants) stays valid.
	DefaultNonceLifetime = 5 * time.Minute
)

// ConnID is the transport's connection handle. Zero is reserved and marks a
// free slot.
type ConnID uint16

// Table errors.
var (
	ErrInvalidConnection   = errors.New("invalid connection handle")
	ErrTableFull           = errors.New("authentication table full")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrNonceExpired        = errors.New("nonce expired")
	ErrInvalidDigestLength = errors.New("invalid digest length")
	ErrDigestMismatch      = errors.New("digest mismatch")
	ErrInvalidNonceLength  = errors.New("invalid nonce length")
)

// NonceNotifier receives freshly issued nonces so the transport can publish
// them to the client. The slice is a copy owned by the receiver.
type NonceNotifier func(conn ConnID, nonce []byte)

// slot is one fixed table entry. connID == 0 means free.
type slot struct {
	connID    ConnID
	nonce     [MaxNonceLength]byte
	nonceLen  int
	createdAt time.Time
	methods   AuthMethod
}

// TableConfig configures a Table.
type TableConfig struct {
	// Capacity is the number of connection slots.
	Capacity int

	// NonceLength is the nonce size in bytes (1..MaxNonceLength).
	NonceLength int

	// NonceLifetime bounds both verification and authenticated sessions.
	NonceLifetime time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Capacity:      DefaultCapacity,
		NonceLength:   DefaultNonceLength,
		NonceLifetime: DefaultNonceLifetime,
	}
}

// Table is the connection authentication table. Slots live in a fixed array
// scanned linearly; the connection counts involved are tiny.
//
// A single mutex guards the array, so no connection can observe or modify a
// slot that is not its own while another connection is being served.
type Table struct {
	mu sync.Mutex

	slots    []slot
	nonceLen int
	lifetime time.Duration
	keys     *KeyStore

	onNonce NonceNotifier
	logger  *slog.Logger

	// random is the nonce source. Defaults to crypto/rand.
	random io.Reader

	timeNow func() time.Time

	// compared receives the number of bytes inspected by each digest
	// comparison. Nil outside of tests.
	compared func(n int)
}

// NewTable creates a table that verifies responses with keys.
func NewTable(keys *KeyStore, cfg TableConfig) (*Table, error) {
	if keys == nil {
		return nil, errors.New("key store is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.NonceLength == 0 {
		cfg.NonceLength = DefaultNonceLength
	}
	if cfg.NonceLength < 0 || cfg.NonceLength > MaxNonceLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNonceLength, cfg.NonceLength)
	}
	if cfg.NonceLifetime <= 0 {
		cfg.NonceLifetime = DefaultNonceLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Table{
		slots:    make([]slot, cfg.Capacity),
		nonceLen: cfg.NonceLength,
		lifetime: cfg.NonceLifetime,
		keys:     keys,
		logger:   slog.Default(),
		random:   rand.Reader,
		timeNow:  cfg.Now,
	}, nil
}

// SetLogger sets the operational logger.
func (t *Table) SetLogger(logger *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if logger != nil {
		t.logger = logger
	}
}

// OnNonce sets the callback invoked whenever a nonce is issued.
func (t *Table) OnNonce(fn NonceNotifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNonce = fn
}

// SetNonceLength changes the length of nonces issued from now on.
func (t *Table) SetNonceLength(n int) error {
	if n <= 0 || n > MaxNonceLength {
		return fmt.Errorf("%w: %d", ErrInvalidNonceLength, n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nonceLen = n
	return nil
}

// NonceLifetime returns the configured lifetime.
func (t *Table) NonceLifetime() time.Duration {
	return t.lifetime
}

// OnConnect allocates (or reuses) the slot for conn and issues a fresh nonce.
// Any previous authentication on the slot is dropped.
func (t *Table) OnConnect(conn ConnID) error {
	if conn == 0 {
		return ErrInvalidConnection
	}

	t.mu.Lock()
	logger := t.logger
	s, err := t.acquireLocked(conn)
	if err != nil {
		t.mu.Unlock()
		logger.Warn("no auth slot for connection", "conn", conn, "capacity", len(t.slots))
		return err
	}
	if err := t.issueLocked(s); err != nil {
		t.mu.Unlock()
		logger.Warn("nonce generation failed", "conn", conn, "error", err)
		return err
	}
	nonce := append([]byte(nil), s.nonce[:s.nonceLen]...)
	notify := t.onNonce
	t.mu.Unlock()

	// Notify outside the lock; the transport may call back into the table.
	if notify != nil {
		notify(conn, nonce)
	}
	logger.Info("nonce issued", "conn", conn, "len", len(nonce))
	return nil
}

// VerifyResponse checks a client digest against the nonce issued to conn.
// On success the connection is marked MethodNonceHMAC.
func (t *Table) VerifyResponse(conn ConnID, digest []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findLocked(conn)
	if s == nil || s.nonceLen == 0 {
		t.logger.Warn("auth response for unknown connection", "conn", conn)
		return ErrUnknownConnection
	}
	if t.expiredLocked(s) {
		t.logger.Warn("auth response with expired nonce", "conn", conn)
		return ErrNonceExpired
	}
	if len(digest) != DigestSize {
		t.logger.Warn("auth response with invalid digest length", "conn", conn, "len", len(digest))
		return fmt.Errorf("%w: %d", ErrInvalidDigestLength, len(digest))
	}

	expected := t.keys.Digest(s.nonce[:s.nonceLen])
	equal, n := constantTimeEqual(expected[:], digest)
	if t.compared != nil {
		t.compared(n)
	}
	if !equal {
		t.logger.Warn("authentication failed", "conn", conn, "reason", "digest mismatch")
		return ErrDigestMismatch
	}

	s.methods |= MethodNonceHMAC
	t.logger.Info("connection authenticated", "conn", conn, "method", MethodNonceHMAC)
	return nil
}

// MarkAuthenticated records a successful authentication by another path.
// A slot is allocated if conn has none. Either way the expiry window starts
// over now, so a connection idle past the nonce lifetime authenticates again.
func (t *Table) MarkAuthenticated(conn ConnID, method AuthMethod) error {
	if conn == 0 {
		return ErrInvalidConnection
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findLocked(conn)
	if s == nil {
		var err error
		if s, err = t.acquireLocked(conn); err != nil {
			t.logger.Warn("no auth slot for connection", "conn", conn, "capacity", len(t.slots))
			return err
		}
		if err := t.issueLocked(s); err != nil {
			return err
		}
	}

	s.createdAt = t.timeNow()
	s.methods |= method
	t.logger.Info("connection authenticated", "conn", conn, "method", method)
	return nil
}

// IsAuthenticated reports whether conn has an entry with at least one
// successful method and an unexpired nonce.
func (t *Table) IsAuthenticated(conn ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findLocked(conn)
	if s == nil || s.methods == 0 {
		return false
	}
	return !t.expiredLocked(s)
}

// Methods returns the methods recorded for conn, regardless of expiry.
func (t *Table) Methods(conn ConnID) AuthMethod {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.findLocked(conn); s != nil {
		return s.methods
	}
	return 0
}

// Nonce returns a copy of the nonce issued to conn.
func (t *Table) Nonce(conn ConnID) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.findLocked(conn)
	if s == nil || s.nonceLen == 0 {
		return nil, false
	}
	return append([]byte(nil), s.nonce[:s.nonceLen]...), true
}

// Clear zeroes the slot held by conn. Safe to call for unknown connections.
func (t *Table) Clear(conn ConnID) {
	if conn == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].connID == conn {
			t.slots[i] = slot{}
		}
	}
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.slots {
		if t.slots[i].connID != 0 {
			n++
		}
	}
	return n
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.slots)
}

func (t *Table) findLocked(conn ConnID) *slot {
	if conn == 0 {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].connID == conn {
			return &t.slots[i]
		}
	}
	return nil
}

func (t *Table) acquireLocked(conn ConnID) (*slot, error) {
	if s := t.findLocked(conn); s != nil {
		return s, nil
	}
	for i := range t.slots {
		if t.slots[i].connID == 0 {
			t.slots[i] = slot{connID: conn}
			return &t.slots[i], nil
		}
	}
	return nil, ErrTableFull
}

func (t *Table) issueLocked(s *slot) error {
	var fresh [MaxNonceLength]byte
	if _, err := io.ReadFull(t.random, fresh[:t.nonceLen]); err != nil {
		// Leave the slot unusable for verification rather than reusing an old nonce.
		s.nonce = [MaxNonceLength]byte{}
		s.nonceLen = 0
		s.createdAt = time.Time{}
		s.methods = 0
		return fmt.Errorf("generate nonce: %w", err)
	}
	s.nonce = fresh
	s.nonceLen = t.nonceLen
	s.createdAt = t.timeNow()
	s.methods = 0
	return nil
}

func (t *Table) expiredLocked(s *slot) bool {
	return t.timeNow().Sub(s.createdAt) > t.lifetime
}

// constantTimeEqual compares a and b without short-circuiting: every byte is
// visited and differences are folded with OR of XOR. It returns the result and
// the number of bytes compared. Lengths are checked by the caller.
func constantTimeEqual(a, b []byte) (bool, int) {
	if len(a) != len(b) {
		return false, 0
	}
	var diff byte
	n := 0
	for i := range a {
		diff |= a[i] ^ b[i]
		n++
	}
	return diff == 0, n
}
