package license

import (
	"context"
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/machineid"
	"voxd/internal/timeguard"
)

// Key generation is slow enough to share one key across the package tests.
var (
	sharedKeyOnce sync.Once
	sharedKey     *rsa.PrivateKey
	sharedKeyErr  error
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = GenerateKeyPair()
	})
	require.NoError(t, sharedKeyErr)
	return sharedKey
}

// boundPayload builds a payload issued at issuedAt for the given machine,
// expiring after the given number of days (0 means permanent).
func boundPayload(machineID string, issuedAt time.Time, days int) *Payload {
	p := &Payload{
		LicenseType:    TypeStandard,
		Licensee:       "Acme Robotics",
		MachineID:      machineID,
		IssueDate:      issuedAt.Format(issueDateLayout),
		IssueTimestamp: float64(issuedAt.UnixNano()) / 1e9,
		Features:       []string{"asr", "tts"},
	}
	if days > 0 {
		p.ExpiryDate = issuedAt.AddDate(0, 0, days).Format(expiryDateLayout)
	}
	return p
}

// writeArtifact signs and encodes a payload into a license file.
func writeArtifact(t *testing.T, key *rsa.PrivateKey, payload *Payload) string {
	t.Helper()
	sig, err := Sign(key, payload)
	require.NoError(t, err)
	artifact, err := Encode(payload, sig)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "license.lic")
	require.NoError(t, os.WriteFile(path, artifact, 0o600))
	return path
}

// newBareVerifier builds a verifier with a pinned fingerprint and no
// clock-tamper detector.
func newBareVerifier(t *testing.T, path string, key *rsa.PrivateKey, fingerprint string) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		ArtifactPath: path,
		PublicKey:    &key.PublicKey,
		Identity:     machineid.NewStatic(fingerprint),
	})
	require.NoError(t, err)
	return v
}

// TestVerifier_ValidLicense verifies the full happy path for a bound,
// time-limited license.
func TestVerifier_ValidLicense(t *testing.T) {
	key := signingKey(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	path := writeArtifact(t, key, boundPayload("abc123", now, 7))
	v := newBareVerifier(t, path, key, "abc123")
	v.now = func() time.Time { return now }

	verdict, err := v.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, StatusActive, verdict.Status)
	assert.Equal(t, 7, verdict.RemainingDays)
	assert.Equal(t, "license valid, 7 days remaining", verdict.Message)
	require.NotNil(t, verdict.Payload)
	assert.Equal(t, "Acme Robotics", verdict.Payload.Licensee)
}

// TestVerifier_ExpiryBoundaries verifies the remaining-days arithmetic at
// the edges of a license's life.
func TestVerifier_ExpiryBoundaries(t *testing.T) {
	key := signingKey(t)
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		days      int
		verifyAt  time.Time
		wantDays  int
		wantError error
	}{
		{name: "one day ahead", days: 1, verifyAt: issued, wantDays: 1},
		{name: "half way through a week", days: 7, verifyAt: issued.AddDate(0, 0, 3), wantDays: 4},
		{name: "one second before expiry", days: 1, verifyAt: issued.AddDate(0, 0, 1).Add(-time.Second), wantDays: 0},
		{name: "at expiry", days: 1, verifyAt: issued.AddDate(0, 0, 1), wantError: ErrLicenseExpired},
		{name: "long expired", days: 1, verifyAt: issued.AddDate(0, 1, 0), wantError: ErrLicenseExpired},
		{name: "permanent", days: 0, verifyAt: issued.AddDate(10, 0, 0), wantDays: PermanentDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArtifact(t, key, boundPayload("abc123", issued, tt.days))
			v := newBareVerifier(t, path, key, "abc123")
			v.now = func() time.Time { return tt.verifyAt }

			verdict, err := v.Verify(context.Background())
			if tt.wantError != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantError), "got %v", err)
				assert.True(t, errors.Is(err, ErrLicense), "got %v", err)
				assert.Nil(t, verdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, verdict.RemainingDays)
		})
	}
}

// TestVerifier_MachineMismatch verifies a license bound to one machine is
// rejected on another, with both fingerprints named in masked form.
func TestVerifier_MachineMismatch(t *testing.T) {
	key := signingKey(t)
	now := time.Now()

	path := writeArtifact(t, key, boundPayload("abc123", now, 7))
	v := newBareVerifier(t, path, key, "xyz999")

	verdict, err := v.Verify(context.Background())
	require.Error(t, err)
	assert.Nil(t, verdict)
	assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Error(), "xyz999")
}

// TestVerifier_MasksLongFingerprints verifies full fingerprints never
// appear in mismatch errors.
func TestVerifier_MasksLongFingerprints(t *testing.T) {
	key := signingKey(t)
	licensed := "a3f8b2c4d5e6f708192a3b4c5d6e7f80"
	actual := "0f7e6d5c4b3a2918f807f6e5d4c3b2a1"

	path := writeArtifact(t, key, boundPayload(licensed, time.Now(), 7))
	v := newBareVerifier(t, path, key, actual)

	_, err := v.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a3f8b2c4...")
	assert.Contains(t, err.Error(), "0f7e6d5c...")
	assert.NotContains(t, err.Error(), licensed)
	assert.NotContains(t, err.Error(), actual)
}

// TestVerifier_WildcardBindsAnywhere verifies a permanent wildcard
// license is valid on any machine.
func TestVerifier_WildcardBindsAnywhere(t *testing.T) {
	key := signingKey(t)
	path := writeArtifact(t, key, boundPayload(machineid.Wildcard, time.Now().Add(-time.Hour), 0))

	for _, fingerprint := range []string{"abc123", "xyz999"} {
		v := newBareVerifier(t, path, key, fingerprint)
		verdict, err := v.Verify(context.Background())
		require.NoError(t, err, "fingerprint %s", fingerprint)
		assert.True(t, verdict.Valid)
		assert.Equal(t, PermanentDays, verdict.RemainingDays)
		assert.Equal(t, "license valid (permanent)", verdict.Message)
	}
}

// TestVerifier_NotFound verifies the not-activated path names the machine
// fingerprint so users can quote it in a license request.
func TestVerifier_NotFound(t *testing.T) {
	key := signingKey(t)
	v := newBareVerifier(t, filepath.Join(t.TempDir(), "license.lic"), key, "abc123")

	verdict, err := v.Verify(context.Background())
	require.Error(t, err)
	assert.Nil(t, verdict)
	assert.True(t, errors.Is(err, ErrLicenseNotFound), "got %v", err)
	assert.True(t, errors.Is(err, ErrLicense), "got %v", err)
	assert.Contains(t, err.Error(), "abc123")
}

// TestVerifier_CorruptArtifact verifies unreadable artifacts are invalid,
// not crashes.
func TestVerifier_CorruptArtifact(t *testing.T) {
	key := signingKey(t)

	tests := []struct {
		name    string
		content string
	}{
		{name: "plain text", content: "this is not a license"},
		{name: "truncated base64", content: "eyJkYXRhIjp7"},
		{name: "empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "license.lic")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			v := newBareVerifier(t, path, key, "abc123")
			_, err := v.Verify(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
		})
	}
}

// TestVerifier_ForeignSignature verifies artifacts signed by a different
// key are rejected.
func TestVerifier_ForeignSignature(t *testing.T) {
	key := signingKey(t)
	foreignKey, err := GenerateKeyPair()
	require.NoError(t, err)

	path := writeArtifact(t, foreignKey, boundPayload("abc123", time.Now(), 7))
	v := newBareVerifier(t, path, key, "abc123")

	_, err = v.Verify(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
	assert.Contains(t, err.Error(), "signature")
}

// TestVerifier_FutureIssueTime verifies the clock sanity check against
// the recorded issue time.
func TestVerifier_FutureIssueTime(t *testing.T) {
	key := signingKey(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	t.Run("issued two days in the future", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", now.AddDate(0, 0, 2), 30))
		v := newBareVerifier(t, path, key, "abc123")
		v.now = func() time.Time { return now }

		_, err := v.Verify(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
		assert.Contains(t, err.Error(), "issue time")
	})

	t.Run("issued within the grace window", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", now.Add(30*time.Minute), 30))
		v := newBareVerifier(t, path, key, "abc123")
		v.now = func() time.Time { return now }

		_, err := v.Verify(context.Background())
		assert.NoError(t, err)
	})

	t.Run("missing issue timestamp skips the check", func(t *testing.T) {
		payload := boundPayload("abc123", now, 30)
		payload.IssueTimestamp = 0
		path := writeArtifact(t, key, payload)
		v := newBareVerifier(t, path, key, "abc123")
		v.now = func() time.Time { return now }

		_, err := v.Verify(context.Background())
		assert.NoError(t, err)
	})
}

// tamperClock implements timeguard.Clock with independently movable wall
// and monotonic readings.
type tamperClock struct {
	now  time.Time
	mono time.Duration
}

func (c *tamperClock) Now() time.Time           { return c.now }
func (c *tamperClock) Monotonic() time.Duration { return c.mono }

func newTamperedDetector(t *testing.T) *timeguard.Detector {
	t.Helper()
	store, err := timeguard.NewStore(filepath.Join(t.TempDir(), ".time_state"), "abc123")
	require.NoError(t, err)

	clock := &tamperClock{now: time.Now()}
	det := timeguard.NewDetector(store, timeguard.Options{Clock: clock, ReferencePaths: []string{}})

	// Establish history, then roll the wall clock back far beyond the
	// tolerance while the monotonic clock stands still.
	require.True(t, det.Check().Valid)
	clock.now = clock.now.Add(time.Hour)
	clock.mono += time.Hour
	require.True(t, det.Check().Valid)
	clock.now = clock.now.Add(-time.Hour)
	return det
}

// TestVerifier_ClockTampering verifies tamper evidence blocks strict
// verifiers and degrades lenient ones.
func TestVerifier_ClockTampering(t *testing.T) {
	key := signingKey(t)
	path := writeArtifact(t, key, boundPayload("abc123", time.Now().Add(-2*time.Hour), 0))

	t.Run("strict mode rejects", func(t *testing.T) {
		v, err := NewVerifier(Config{
			ArtifactPath: path,
			PublicKey:    &key.PublicKey,
			Identity:     machineid.NewStatic("abc123"),
			Detector:     newTamperedDetector(t),
			StrictTime:   true,
		})
		require.NoError(t, err)

		_, err = v.Verify(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
		assert.Contains(t, err.Error(), "clock tampering detected")
	})

	t.Run("lenient mode degrades", func(t *testing.T) {
		v, err := NewVerifier(Config{
			ArtifactPath: path,
			PublicKey:    &key.PublicKey,
			Identity:     machineid.NewStatic("abc123"),
			Detector:     newTamperedDetector(t),
			StrictTime:   false,
		})
		require.NoError(t, err)

		verdict, err := v.Verify(context.Background())
		require.NoError(t, err)
		assert.True(t, verdict.Valid)
		assert.NotEmpty(t, verdict.Degraded)
	})
}

// TestVerifier_Status verifies the folded, non-halting form.
func TestVerifier_Status(t *testing.T) {
	key := signingKey(t)

	t.Run("active", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", time.Now(), 30))
		v := newBareVerifier(t, path, key, "abc123")

		verdict := v.Status(context.Background())
		assert.True(t, verdict.Valid)
		assert.Equal(t, StatusActive, verdict.Status)
	})

	t.Run("not activated", func(t *testing.T) {
		v := newBareVerifier(t, filepath.Join(t.TempDir(), "license.lic"), key, "abc123")

		verdict := v.Status(context.Background())
		assert.False(t, verdict.Valid)
		assert.Equal(t, StatusNotActivated, verdict.Status)
		assert.NotEmpty(t, verdict.Message)
	})

	t.Run("expired", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", time.Now().AddDate(0, 0, -30), 7))
		v := newBareVerifier(t, path, key, "abc123")

		verdict := v.Status(context.Background())
		assert.False(t, verdict.Valid)
		assert.Equal(t, StatusExpired, verdict.Status)
	})
}

// TestVerifier_Info verifies the display view, including that it does not
// require a valid signature.
func TestVerifier_Info(t *testing.T) {
	key := signingKey(t)
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	t.Run("bound license", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("a3f8b2c4d5e6f708192a3b4c5d6e7f80", issued, 30))
		v := newBareVerifier(t, path, key, "a3f8b2c4d5e6f708192a3b4c5d6e7f80")
		v.now = func() time.Time { return issued.AddDate(0, 0, 10) }

		info, err := v.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusActive, info.Status)
		assert.Equal(t, TypeStandard, info.LicenseType)
		assert.Equal(t, "Acme Robotics", info.Licensee)
		assert.Equal(t, "a3f8b2c4...", info.MachineID)
		assert.Equal(t, 20, info.RemainingDays)
		assert.False(t, info.IsExpired)
		assert.Equal(t, []string{"asr", "tts"}, info.Features)
	})

	t.Run("permanent license", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", issued, 0))
		v := newBareVerifier(t, path, key, "abc123")

		info, err := v.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ExpiryPermanent, info.ExpiryDate)
		assert.Equal(t, PermanentDays, info.RemainingDays)
	})

	t.Run("expired license", func(t *testing.T) {
		path := writeArtifact(t, key, boundPayload("abc123", issued, 7))
		v := newBareVerifier(t, path, key, "abc123")
		v.now = func() time.Time { return issued.AddDate(0, 0, 30) }

		info, err := v.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, info.Status)
		assert.True(t, info.IsExpired)
		assert.Equal(t, 0, info.RemainingDays)
	})

	t.Run("foreign signature still displays", func(t *testing.T) {
		foreignKey, err := GenerateKeyPair()
		require.NoError(t, err)
		path := writeArtifact(t, foreignKey, boundPayload("abc123", issued, 7))
		v := newBareVerifier(t, path, key, "abc123")

		info, err := v.Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Acme Robotics", info.Licensee)
	})

	t.Run("missing artifact", func(t *testing.T) {
		v := newBareVerifier(t, filepath.Join(t.TempDir(), "license.lic"), key, "abc123")
		_, err := v.Info(context.Background())
		assert.True(t, errors.Is(err, ErrLicenseNotFound), "got %v", err)
	})
}

// TestVerifier_IssueToVerifyRoundTrip exercises issuer and verifier
// together the way the admin tooling and daemon use them.
func TestVerifier_IssueToVerifyRoundTrip(t *testing.T) {
	key := signingKey(t)
	issuer := NewIssuer(key)

	artifact, _, err := issuer.Issue(IssueRequest{
		MachineID: "abc123",
		Licensee:  "Acme Robotics",
		Type:      TypeTrial,
		Days:      7,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "license.lic")
	require.NoError(t, os.WriteFile(path, artifact, 0o600))

	v := newBareVerifier(t, path, key, "abc123")
	verdict, err := v.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, DefaultFeatures, verdict.Payload.Features)

	// The same artifact on a different machine must not verify.
	other := newBareVerifier(t, path, key, "xyz999")
	_, err = other.Verify(context.Background())
	assert.True(t, errors.Is(err, ErrLicenseInvalid), "got %v", err)
}

// TestNewVerifier_Validation verifies construction requirements.
func TestNewVerifier_Validation(t *testing.T) {
	key := signingKey(t)

	_, err := NewVerifier(Config{ArtifactPath: "license.lic"})
	assert.True(t, errors.Is(err, ErrLicense), "got %v", err)

	_, err = NewVerifier(Config{PublicKey: &key.PublicKey})
	assert.True(t, errors.Is(err, ErrLicense), "got %v", err)
}

// TestVerifier_ConcurrentVerify verifies concurrent callers serialize
// cleanly over the shared detector state.
func TestVerifier_ConcurrentVerify(t *testing.T) {
	key := signingKey(t)
	path := writeArtifact(t, key, boundPayload("abc123", time.Now(), 30))

	store, err := timeguard.NewStore(filepath.Join(t.TempDir(), ".time_state"), "abc123")
	require.NoError(t, err)
	v, err := NewVerifier(Config{
		ArtifactPath: path,
		PublicKey:    &key.PublicKey,
		Identity:     machineid.NewStatic("abc123"),
		Detector:     timeguard.NewDetector(store, timeguard.Options{ReferencePaths: []string{}}),
		StrictTime:   true,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.Verify(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(len(errs)), state.CheckCount)
}

func BenchmarkVerifier_Verify(b *testing.B) {
	key, err := GenerateKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	payload := boundPayload("abc123", time.Now(), 365)
	sig, err := Sign(key, payload)
	if err != nil {
		b.Fatal(err)
	}
	artifact, err := Encode(payload, sig)
	if err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(b.TempDir(), "license.lic")
	if err := os.WriteFile(path, artifact, 0o600); err != nil {
		b.Fatal(err)
	}

	v, err := NewVerifier(Config{
		ArtifactPath: path,
		PublicKey:    &key.PublicKey,
		Identity:     machineid.NewStatic("abc123"),
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Verify(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
