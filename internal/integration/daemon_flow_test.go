package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/app"
	"voxd/internal/config"
	"voxd/internal/infrastructure"
	"voxd/internal/license"
	"voxd/internal/shared/testutil"
)

// newDaemon assembles a full application rooted in a temp dir, wired to
// trust the fixture's key. No artifact is installed yet; tests activate it
// the way an operator would.
func newDaemon(t *testing.T) (*app.Application, *testutil.LicenseFixture, string) {
	t.Helper()

	fx := testutil.NewLicenseFixture(t)
	dir := t.TempDir()

	pem, err := license.MarshalPublicKey(fx.PublicKey())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Server.Port = 0
	cfg.License.File = filepath.Join(dir, "license.lic")
	cfg.License.PublicKey = string(pem)
	cfg.License.RecheckInterval = 0
	cfg.TimeGuard.StateFile = filepath.Join(dir, ".time_state")
	cfg.Logging.Output = "stdout"
	cfg.Logging.FilePath = ""

	infrastructure.ResetLoggerForTesting()
	application, err := app.New(cfg)
	require.NoError(t, err)
	return application, fx, dir
}

func serve(t *testing.T, a *app.Application, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// TestDaemonFlow_Activation walks the operator's activation sequence: a
// fresh install answers status requests but holds API traffic, installing
// an artifact changes nothing until reload, and reload opens the gate.
func TestDaemonFlow_Activation(t *testing.T) {
	application, fx, dir := newDaemon(t)

	rec := serve(t, application, http.MethodGet, "/api/providers")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	var verdict license.Verdict
	rec = serve(t, application, http.MethodGet, "/api/license/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.False(t, verdict.Valid)
	assert.Equal(t, license.StatusNotActivated, verdict.Status)

	// Copy the artifact into place and tell the daemon to pick it up.
	fx.WriteArtifact(t, dir, "*", 30)

	rec = serve(t, application, http.MethodPost, "/api/license/reload")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.True(t, verdict.Valid)
	assert.Equal(t, license.StatusActive, verdict.Status)

	rec = serve(t, application, http.MethodGet, "/api/providers")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, application.CheckLicense(context.Background()).Valid)
}

// TestDaemonFlow_MachineBinding issues against the daemon's real
// fingerprint and against a foreign one, both over the reload endpoint.
func TestDaemonFlow_MachineBinding(t *testing.T) {
	application, fx, dir := newDaemon(t)

	fx.WriteArtifact(t, dir, "ffffffffffffffffffffffffffffffff", 30)

	var verdict license.Verdict
	rec := serve(t, application, http.MethodPost, "/api/license/reload")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.False(t, verdict.Valid)
	assert.Equal(t, license.StatusInvalid, verdict.Status)
	assert.Contains(t, verdict.Message, "issued to machine")

	// Reissued for this machine, same file, another reload.
	fx.WriteArtifact(t, dir, application.Identity.Fingerprint(), 30)

	rec = serve(t, application, http.MethodPost, "/api/license/reload")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.True(t, verdict.Valid)
}
