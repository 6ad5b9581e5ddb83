package cert

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := Generate("fan-01", now, 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	c := id.Certificate
	if c.Subject.CommonName != "fan-01" {
		t.Errorf("CommonName = %q, want fan-01", c.Subject.CommonName)
	}
	if len(c.DNSNames) != 2 || c.DNSNames[1] != "fan-01.local" {
		t.Errorf("DNSNames = %v", c.DNSNames)
	}
	if !c.NotAfter.Equal(now.Add(DefaultValidity).Truncate(time.Second)) {
		t.Errorf("NotAfter = %v, want %v", c.NotAfter, now.Add(DefaultValidity))
	}
	if id.PrivateKey.Curve.Params().Name != "P-256" {
		t.Errorf("curve = %s, want P-256", id.PrivateKey.Curve.Params().Name)
	}
	if err := c.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature); err != nil {
		t.Errorf("certificate is not self-signed: %v", err)
	}
	if len(id.Fingerprint()) != 64 {
		t.Errorf("Fingerprint() = %q, want 64 hex chars", id.Fingerprint())
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "identity")
	now := time.Now()

	first, created, err := LoadOrCreate(dir, "fan-01", now)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !created {
		t.Error("first call should create an identity")
	}

	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	second, created, err := LoadOrCreate(dir, "fan-01", now)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if created {
		t.Error("second call should reuse the stored identity")
	}
	if second.Fingerprint() != first.Fingerprint() {
		t.Error("reloaded identity has a different fingerprint")
	}
	if !second.PrivateKey.Equal(first.PrivateKey) {
		t.Error("reloaded key differs")
	}
}

func TestLoadOrCreateRenews(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	first, _, err := LoadOrCreate(dir, "fan-01", now)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}

	// Another device ID replaces the identity.
	other, created, err := LoadOrCreate(dir, "fan-02", now)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !created || other.Fingerprint() == first.Fingerprint() {
		t.Error("identity for another device should be regenerated")
	}

	// So does one close to expiry.
	late := now.Add(DefaultValidity - RenewalWindow/2)
	if !other.NeedsRenewal("fan-02", late) {
		t.Error("NeedsRenewal() = false inside the renewal window")
	}
	if _, created, err = LoadOrCreate(dir, "fan-02", late); err != nil || !created {
		t.Errorf("LoadOrCreate() near expiry: created=%v err=%v", created, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CertFileName), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, KeyFileName), []byte("junk"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadOrCreate(dir, "fan-01", time.Now()); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("LoadOrCreate() error = %v, want ErrInvalidPEM", err)
	}
}

func TestPinnedVerifier(t *testing.T) {
	id, err := Generate("fan-01", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		MinVersion:   tls.VersionTLS13,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_ = conn.(*tls.Conn).Handshake()
			}()
		}
	}()

	handshake := func(pin string) error {
		conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: PinnedVerifier(pin),
			MinVersion:            tls.VersionTLS13,
		})
		if err != nil {
			return err
		}
		return conn.Close()
	}

	// Colon-separated upper-case form is accepted.
	fp := strings.ToUpper(id.Fingerprint())
	var b strings.Builder
	for i := 0; i < len(fp); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(fp[i : i+2])
	}
	if err := handshake(b.String()); err != nil {
		t.Errorf("handshake with matching pin failed: %v", err)
	}

	if err := handshake(strings.Repeat("0", 64)); !errors.Is(err, ErrFingerprintMismatch) {
		t.Errorf("handshake with wrong pin: error = %v, want ErrFingerprintMismatch", err)
	}
}

func TestPEMRoundTripErrors(t *testing.T) {
	id, err := Generate("fan-01", time.Now(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM, err := EncodeKeyPEM(id.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeCertPEM(keyPEM); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeCertPEM(key) error = %v, want ErrInvalidPEM", err)
	}
	if _, err := DecodeKeyPEM(EncodeCertPEM(id.Certificate.Raw)); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("DecodeKeyPEM(cert) error = %v, want ErrInvalidPEM", err)
	}
}
