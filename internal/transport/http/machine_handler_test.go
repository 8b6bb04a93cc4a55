package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/machineid"
	"voxd/internal/shared/testutil"
)

func newMachineServer(t *testing.T, identity *machineid.Identity) *httptest.Server {
	t.Helper()

	logger, _ := testutil.NewTestLogger(t)
	handler := NewMachineHandler(identity, logger)

	r := chi.NewRouter()
	r.Mount("/api/machine", handler.Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// TestMachineHandler_Fingerprint verifies the response carries the full
// fingerprint, its masked form and the sources behind it.
func TestMachineHandler_Fingerprint(t *testing.T) {
	const fp = "0123456789abcdef0123456789abcdef"
	srv := newMachineServer(t, machineid.NewStatic(fp))

	var resp FingerprintResponse
	code := getJSON(t, srv.URL+"/api/machine/fingerprint", &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, fp, resp.Fingerprint)
	assert.Equal(t, "01234567...", resp.Masked)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "static", resp.Sources[0].Name)
	assert.Equal(t, fp, resp.Sources[0].Value)
	assert.Empty(t, resp.Degraded)
}

// TestMachineHandler_HostIdentity runs against the real host collector.
// The fingerprint shape is fixed even though its value is not.
func TestMachineHandler_HostIdentity(t *testing.T) {
	srv := newMachineServer(t, machineid.New())

	var resp FingerprintResponse
	code := getJSON(t, srv.URL+"/api/machine/fingerprint", &resp)

	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Fingerprint, 32)
	assert.Equal(t, resp.Fingerprint[:8]+"...", resp.Masked)
	assert.NotEmpty(t, resp.Sources)
}
