// Package integration exercises flows that cross package boundaries:
// artifacts minted by the issuer travel through the same verification stack
// the daemon assembles, with real key material, persisted tamper-detection
// state and machine identities.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/license"
	"voxd/internal/machineid"
	"voxd/internal/shared/testutil"
	"voxd/internal/timeguard"
)

// fakeClock drives the tamper detector from the test. Moving the wall
// reading while the monotonic reading keeps its own pace is exactly what
// clock manipulation looks like from inside a process.
type fakeClock struct {
	now  time.Time
	mono time.Duration
}

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Monotonic() time.Duration { return c.mono }

// newStack assembles the daemon's verification stack in dir: a static
// machine identity, a tamper detector persisting next to the artifact, and
// a verifier over the fixture's public key. A nil clock runs on system time.
func newStack(t *testing.T, fx *testutil.LicenseFixture, dir string, clock timeguard.Clock, strict bool) (*license.Verifier, *machineid.Identity) {
	t.Helper()

	identity := machineid.NewStatic("feedfacefeedfacefeedfacefeedface")

	store, err := timeguard.NewStore(filepath.Join(dir, ".time_state"), identity.Fingerprint())
	require.NoError(t, err)

	logger, _ := testutil.NewTestLogger(t)
	detector := timeguard.NewDetector(store, timeguard.Options{
		Clock:          clock,
		ReferencePaths: []string{},
		Logger:         logger,
	})

	verifier, err := license.NewVerifier(license.Config{
		ArtifactPath: filepath.Join(dir, "license.lic"),
		PublicKey:    fx.PublicKey(),
		Identity:     identity,
		Detector:     detector,
		StrictTime:   strict,
		Logger:       logger,
	})
	require.NoError(t, err)
	return verifier, identity
}

func TestLicenseFlow_IssueAndVerify(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	verifier, identity := newStack(t, fx, dir, nil, true)
	fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)

	verdict, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, verdict.Valid)
	assert.Equal(t, license.StatusActive, verdict.Status)
	// The expiry sits exactly 30 days out, so partial days floor to 29.
	assert.Equal(t, 29, verdict.RemainingDays)
	require.NotNil(t, verdict.Payload)
	assert.Equal(t, identity.Fingerprint(), verdict.Payload.MachineID)

	// Repeat passes keep succeeding while tamper state accumulates.
	for i := 0; i < 3; i++ {
		_, err := verifier.Verify(context.Background())
		require.NoError(t, err)
	}

	info, err := verifier.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Test Licensee", info.Licensee)
	assert.Equal(t, "feedface...", info.MachineID)
	assert.False(t, info.IsExpired)
}

func TestLicenseFlow_PermanentArtifact(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	verifier, _ := newStack(t, fx, dir, nil, true)
	fx.WriteArtifact(t, dir, machineid.Wildcard, 0)

	verdict, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, verdict.Valid)
	assert.Equal(t, license.PermanentDays, verdict.RemainingDays)
	assert.Contains(t, verdict.Message, "permanent")
}

func TestLicenseFlow_WrongMachine(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	verifier, _ := newStack(t, fx, dir, nil, true)
	fx.WriteArtifact(t, dir, "00000000000000000000000000000000", 30)

	_, err := verifier.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrLicenseInvalid)
	assert.Contains(t, err.Error(), "issued to machine 00000000...")
	assert.Contains(t, err.Error(), "feedface...")
}

func TestLicenseFlow_TamperedArtifact(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	verifier, identity := newStack(t, fx, dir, nil, true)
	path := fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)

	// Upgrade the tier without access to the private key. The signature
	// covers the canonical payload, so the edit must be caught.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	payload, sig, err := license.Decode(raw)
	require.NoError(t, err)
	payload.LicenseType = license.TypeEnterprise
	forged, err := license.Encode(payload, sig)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, forged, 0o644))

	_, err = verifier.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrLicenseInvalid)
	assert.Contains(t, err.Error(), "signature verification failed")
}

func TestLicenseFlow_ExpiredArtifact(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	verifier, identity := newStack(t, fx, dir, nil, true)
	fx.WriteExpiredArtifact(t, dir, identity.Fingerprint(), 72*time.Hour)

	_, err := verifier.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrLicenseExpired)

	// The expired artifact still decodes for display.
	info, err := verifier.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.IsExpired)
	assert.Equal(t, license.StatusExpired, info.Status)
	assert.Equal(t, 0, info.RemainingDays)
}

func TestLicenseFlow_ClockRollback(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	verifier, identity := newStack(t, fx, dir, clock, true)
	fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)

	// First pass records the baseline.
	_, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	// Roll the wall clock back two hours. Both the last-check and the
	// high-water-mark signals should trip.
	clock.now = clock.now.Add(-2 * time.Hour)

	_, err = verifier.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrLicenseInvalid)
	assert.Contains(t, err.Error(), "clock tampering detected")
	assert.Contains(t, err.Error(), "moved back")
	assert.Contains(t, err.Error(), "high-water mark")
}

func TestLicenseFlow_RollbackDegradesWithoutStrict(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	verifier, identity := newStack(t, fx, dir, clock, false)
	fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)

	_, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	clock.now = clock.now.Add(-2 * time.Hour)

	// Without strict validation the rollback is reported, not fatal.
	verdict, err := verifier.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.NotEmpty(t, verdict.Degraded)
}

func TestLicenseFlow_WatermarkSurvivesRestart(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	verifier, identity := newStack(t, fx, dir, &fakeClock{now: start}, true)
	fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)
	_, err := verifier.Verify(context.Background())
	require.NoError(t, err)

	// A fresh process on the same state file, started after the clock was
	// set back a day, still sees the persisted high-water mark.
	restarted, _ := newStack(t, fx, dir, &fakeClock{now: start.Add(-24 * time.Hour)}, true)
	_, err = restarted.Verify(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrLicenseInvalid)
	assert.Contains(t, err.Error(), "high-water mark")
}

func TestLicenseFlow_CacheReloadAfterActivation(t *testing.T) {
	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()
	ctx := context.Background()

	verifier, identity := newStack(t, fx, dir, nil, true)
	cache := license.NewCache(verifier, 0, 0)

	verdict := cache.Status(ctx)
	assert.False(t, verdict.Valid)
	assert.Equal(t, license.StatusNotActivated, verdict.Status)

	// Installing the artifact is not enough; the negative verdict is
	// still cached.
	fx.WriteArtifact(t, dir, identity.Fingerprint(), 30)
	assert.False(t, cache.Status(ctx).Valid)

	// Dropping the entry is what the reload endpoint does.
	cache.Invalidate()
	fresh := cache.Status(ctx)
	assert.True(t, fresh.Valid)
	assert.Equal(t, license.StatusActive, fresh.Status)
}
