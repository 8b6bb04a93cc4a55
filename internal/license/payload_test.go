package license

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *Payload {
	return &Payload{
		LicenseType:    TypeStandard,
		Licensee:       "Acme Robotics",
		MachineID:      "a3f8b2c4d5e6f708192a3b4c5d6e7f80",
		IssueDate:      "2025-06-01 12:00:00",
		IssueTimestamp: 1748779200.0,
		Features:       []string{"asr", "tts"},
		ExpiryDate:     "2026-06-01T12:00:00",
	}
}

// TestPayload_Canonical verifies the canonical form is deterministic,
// compact, and key-sorted.
func TestPayload_Canonical(t *testing.T) {
	p := testPayload()

	first, err := p.Canonical()
	require.NoError(t, err)
	second, err := p.Canonical()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Keys must appear in sorted order.
	expected := `{"expiry_date":"2026-06-01T12:00:00","features":["asr","tts"],` +
		`"issue_date":"2025-06-01 12:00:00","issue_timestamp":1748779200,` +
		`"license_type":"standard","licensee":"Acme Robotics",` +
		`"machine_id":"a3f8b2c4d5e6f708192a3b4c5d6e7f80"}`
	assert.Equal(t, expected, string(first))
}

// TestPayload_CanonicalNilFeatures verifies nil features serialize as an
// empty array, never null.
func TestPayload_CanonicalNilFeatures(t *testing.T) {
	p := testPayload()
	p.Features = nil

	canonical, err := p.Canonical()
	require.NoError(t, err)
	assert.Contains(t, string(canonical), `"features":[]`)
	assert.NotContains(t, string(canonical), "null")
}

// TestPayload_CanonicalStableAcrossDecode verifies canonical bytes survive
// a JSON round trip, which is what signature verification depends on.
func TestPayload_CanonicalStableAcrossDecode(t *testing.T) {
	p := testPayload()
	p.IssueTimestamp = 1748779200.123456

	canonical, err := p.Canonical()
	require.NoError(t, err)

	wire, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded Payload
	require.NoError(t, json.Unmarshal(wire, &decoded))

	recanonical, err := decoded.Canonical()
	require.NoError(t, err)
	assert.Equal(t, canonical, recanonical)
}

// TestPayload_ExpiresAt verifies expiry parsing for both ISO forms and
// the permanent case.
func TestPayload_ExpiresAt(t *testing.T) {
	tests := []struct {
		name     string
		expiry   string
		wantOK   bool
		wantErr  bool
		wantYear int
	}{
		{name: "plain seconds", expiry: "2026-06-01T12:00:00", wantOK: true, wantYear: 2026},
		{name: "with microseconds", expiry: "2026-06-01T12:00:00.123456", wantOK: true, wantYear: 2026},
		{name: "permanent", expiry: "", wantOK: false},
		{name: "garbage", expiry: "next tuesday", wantErr: true},
		{name: "date only", expiry: "2026-06-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload()
			p.ExpiryDate = tt.expiry

			expiry, ok, err := p.ExpiresAt()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantYear, expiry.Year())
			}
		})
	}
}

// TestPayload_RemainingDays verifies day computation at the boundaries.
func TestPayload_RemainingDays(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name   string
		expiry string
		want   int
	}{
		{name: "permanent", expiry: "", want: PermanentDays},
		{name: "one day left", expiry: "2025-06-02T12:00:00", want: 1},
		{name: "just over a day rounds down", expiry: "2025-06-02T13:30:00", want: 1},
		{name: "seven days", expiry: "2025-06-08T12:00:00", want: 7},
		{name: "under a day", expiry: "2025-06-01T23:00:00", want: 0},
		{name: "already expired", expiry: "2025-05-01T12:00:00", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload()
			p.ExpiryDate = tt.expiry

			days, err := p.RemainingDays(now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, days)
		})
	}
}

// TestPayload_ExpiryDisplay verifies the human-readable expiry form.
func TestPayload_ExpiryDisplay(t *testing.T) {
	p := testPayload()
	assert.Equal(t, "2026-06-01T12:00:00", p.ExpiryDisplay())

	p.ExpiryDate = ""
	assert.Equal(t, ExpiryPermanent, p.ExpiryDisplay())
	assert.True(t, p.Permanent())
}
