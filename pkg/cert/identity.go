package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Identity file names inside the identity directory.
const (
	CertFileName = "device.crt"
	KeyFileName  = "device.key"
)

const (
	// DefaultValidity is the lifetime of a generated certificate.
	DefaultValidity = 10 * 365 * 24 * time.Hour

	// RenewalWindow is how long before expiry a certificate is replaced.
	RenewalWindow = 30 * 24 * time.Hour
)

// Identity errors.
var (
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
	ErrNoCertificate       = errors.New("no peer certificate")
)

// Identity is a device certificate and its key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// TLSCertificate returns the identity in crypto/tls form.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// Fingerprint returns the SHA-256 fingerprint of the certificate.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.Certificate.Raw)
}

// Fingerprint returns the lower-case hex SHA-256 of a DER certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Generate creates a self-signed P-256 identity for deviceID. The device ID
// is the common name and, with ".local", a DNS name.
func Generate(deviceID string, now time.Time, validity time.Duration) (*Identity, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   deviceID,
			Organization: []string{"FanLink"},
		},
		DNSNames:              []string{deviceID, deviceID + ".local"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Identity{Certificate: cert, PrivateKey: key}, nil
}

// Load reads the identity stored in dir.
func Load(dir string) (*Identity, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, CertFileName))
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, KeyFileName))
	if err != nil {
		return nil, err
	}
	cert, err := DecodeCertPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CertFileName, err)
	}
	key, err := DecodeKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyFileName, err)
	}
	return &Identity{Certificate: cert, PrivateKey: key}, nil
}

// Save writes the identity to dir. The key file is private to the owner.
func (id *Identity) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	keyPEM, err := EncodeKeyPEM(id.PrivateKey)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, KeyFileName), keyPEM, 0o600); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, CertFileName), EncodeCertPEM(id.Certificate.Raw), 0o644)
}

// NeedsRenewal reports whether the certificate expires within RenewalWindow
// of now, or was issued for another device.
func (id *Identity) NeedsRenewal(deviceID string, now time.Time) bool {
	if id.Certificate.Subject.CommonName != deviceID {
		return true
	}
	return now.Add(RenewalWindow).After(id.Certificate.NotAfter)
}

// LoadOrCreate returns the identity in dir, generating and saving a new one
// when none exists or the stored one needs renewal. created reports whether
// a new identity was written.
func LoadOrCreate(dir, deviceID string, now time.Time) (id *Identity, created bool, err error) {
	id, err = Load(dir)
	switch {
	case err == nil && !id.NeedsRenewal(deviceID, now):
		return id, false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, false, err
	}

	id, err = Generate(deviceID, now, DefaultValidity)
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(dir); err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// PinnedVerifier returns a VerifyPeerCertificate function that accepts only
// a leaf certificate with the given fingerprint. Colons and case are
// ignored.
func PinnedVerifier(fingerprint string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	want := strings.ToLower(strings.ReplaceAll(fingerprint, ":", ""))
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoCertificate
		}
		if got := Fingerprint(rawCerts[0]); got != want {
			return fmt.Errorf("%w: got %s", ErrFingerprintMismatch, got)
		}
		return nil
	}
}
