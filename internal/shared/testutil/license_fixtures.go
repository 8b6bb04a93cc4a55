package testutil

import (
	"crypto/rsa"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxd/internal/license"
)

// LicenseFixture mints signed license artifacts for tests that need a
// realistic license on disk. It wraps a throwaway RSA key pair, so artifacts
// it writes verify only against its own public key.
type LicenseFixture struct {
	Key    *rsa.PrivateKey
	Issuer *license.Issuer
}

// NewLicenseFixture generates a fresh signing key pair. Key generation is
// the slow part, so share one fixture across subtests where possible.
func NewLicenseFixture(t testing.TB) *LicenseFixture {
	t.Helper()

	key, err := license.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	return &LicenseFixture{
		Key:    key,
		Issuer: license.NewIssuer(key),
	}
}

// PublicKey returns the verification half of the fixture key.
func (f *LicenseFixture) PublicKey() *rsa.PublicKey {
	return &f.Key.PublicKey
}

// WriteArtifact issues a standard license bound to machineID, valid for the
// given number of days (zero means permanent), and writes it to dir.
// It returns the artifact path.
func (f *LicenseFixture) WriteArtifact(t testing.TB, dir, machineID string, days int) string {
	t.Helper()

	artifact, _, err := f.Issuer.Issue(license.IssueRequest{
		MachineID: machineID,
		Licensee:  "Test Licensee",
		Type:      license.TypeStandard,
		Days:      days,
		Features:  []string{"asr", "tts"},
	})
	if err != nil {
		t.Fatalf("issue license: %v", err)
	}
	return f.writeFile(t, dir, artifact)
}

// WriteExpiredArtifact writes an artifact that expired the given duration
// ago. The issuer only mints future expiries, so the payload is signed
// directly.
func (f *LicenseFixture) WriteExpiredArtifact(t testing.TB, dir, machineID string, expiredBy time.Duration) string {
	t.Helper()

	issued := time.Now().Add(-expiredBy - 24*time.Hour)
	payload := &license.Payload{
		LicenseType:    license.TypeStandard,
		Licensee:       "Test Licensee",
		MachineID:      machineID,
		IssueDate:      issued.Format("2006-01-02 15:04:05"),
		IssueTimestamp: float64(issued.UnixNano()) / 1e9,
		Features:       []string{"asr", "tts"},
		ExpiryDate:     time.Now().Add(-expiredBy).Format("2006-01-02T15:04:05"),
	}

	sig, err := license.Sign(f.Key, payload)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	artifact, err := license.Encode(payload, sig)
	if err != nil {
		t.Fatalf("encode artifact: %v", err)
	}
	return f.writeFile(t, dir, artifact)
}

func (f *LicenseFixture) writeFile(t testing.TB, dir string, artifact []byte) string {
	t.Helper()

	path := filepath.Join(dir, "license.lic")
	if err := os.WriteFile(path, artifact, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}
