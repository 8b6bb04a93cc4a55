package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIssueRequest() IssueRequest {
	return IssueRequest{
		MachineID: "a3f8b2c4d5e6f708192a3b4c5d6e7f80",
		Licensee:  "Acme Robotics",
		Type:      TypeStandard,
		Days:      365,
		Features:  []string{"asr", "tts", "llm"},
	}
}

// TestIssuer_Issue verifies a minted artifact decodes back to the
// requested grant with a verifiable signature.
func TestIssuer_Issue(t *testing.T) {
	key := signingKey(t)
	issuer := NewIssuer(key)

	before := time.Now()
	artifact, payload, err := issuer.Issue(validIssueRequest())
	require.NoError(t, err)
	after := time.Now()

	decoded, sig, err := Decode(artifact)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	ok, err := VerifySignature(&key.PublicKey, decoded, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, TypeStandard, decoded.LicenseType)
	assert.Equal(t, "Acme Robotics", decoded.Licensee)
	assert.Equal(t, "a3f8b2c4d5e6f708192a3b4c5d6e7f80", decoded.MachineID)
	assert.Equal(t, []string{"asr", "tts", "llm"}, decoded.Features)

	issued, err := time.ParseInLocation(issueDateLayout, decoded.IssueDate, time.Local)
	require.NoError(t, err)
	assert.WithinDuration(t, before, issued, after.Sub(before)+time.Second)
	assert.InDelta(t, float64(before.UnixNano())/1e9, decoded.IssueTimestamp, 5)

	expiry, hasExpiry, err := decoded.ExpiresAt()
	require.NoError(t, err)
	require.True(t, hasExpiry)
	assert.WithinDuration(t, before.AddDate(0, 0, 365), expiry, time.Minute)
}

// TestIssuer_PermanentLicense verifies zero days mints a license with no
// expiry date.
func TestIssuer_PermanentLicense(t *testing.T) {
	issuer := NewIssuer(signingKey(t))

	req := validIssueRequest()
	req.Days = 0

	_, payload, err := issuer.Issue(req)
	require.NoError(t, err)
	assert.True(t, payload.Permanent())
	assert.Empty(t, payload.ExpiryDate)

	days, err := payload.RemainingDays(time.Now())
	require.NoError(t, err)
	assert.Equal(t, PermanentDays, days)
}

// TestIssuer_DefaultFeatures verifies an empty feature list falls back to
// the basic grant.
func TestIssuer_DefaultFeatures(t *testing.T) {
	issuer := NewIssuer(signingKey(t))

	req := validIssueRequest()
	req.Features = nil

	_, payload, err := issuer.Issue(req)
	require.NoError(t, err)
	assert.Equal(t, DefaultFeatures, payload.Features)
}

// TestIssuer_WildcardMachine verifies the wildcard is accepted as a
// machine binding.
func TestIssuer_WildcardMachine(t *testing.T) {
	issuer := NewIssuer(signingKey(t))

	req := validIssueRequest()
	req.MachineID = "*"

	_, payload, err := issuer.Issue(req)
	require.NoError(t, err)
	assert.Equal(t, "*", payload.MachineID)
}

// TestIssuer_RejectsInvalidRequests verifies validation failures.
func TestIssuer_RejectsInvalidRequests(t *testing.T) {
	issuer := NewIssuer(signingKey(t))

	tests := []struct {
		name   string
		mutate func(*IssueRequest)
	}{
		{name: "missing machine id", mutate: func(r *IssueRequest) { r.MachineID = "" }},
		{name: "missing licensee", mutate: func(r *IssueRequest) { r.Licensee = "" }},
		{name: "unknown license type", mutate: func(r *IssueRequest) { r.Type = "gold" }},
		{name: "negative days", mutate: func(r *IssueRequest) { r.Days = -1 }},
		{name: "absurd days", mutate: func(r *IssueRequest) { r.Days = 40000 }},
		{name: "empty feature tag", mutate: func(r *IssueRequest) { r.Features = []string{"asr", ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIssueRequest()
			tt.mutate(&req)

			_, _, err := issuer.Issue(req)
			assert.ErrorContains(t, err, "invalid issue request")
		})
	}
}

// TestIssuer_NoKey verifies issuing without a signing key fails cleanly.
func TestIssuer_NoKey(t *testing.T) {
	issuer := NewIssuer(nil)
	_, _, err := issuer.Issue(validIssueRequest())
	assert.ErrorContains(t, err, "no signing key")
}
