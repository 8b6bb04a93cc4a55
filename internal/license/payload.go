// Package license implements offline license enforcement: issuing,
// encoding and verifying detached-signature license artifacts that bind a
// grant to a machine fingerprint. Verification is entirely local; no
// license server is contacted at any point.
//
// An artifact is a base64 envelope holding the license payload together
// with an RSA-PSS signature over the payload's canonical JSON form. The
// private key never ships with the product: deployments carry only the
// public key, so possession of a binary is never enough to mint licenses.
package license

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// PermanentDays is the remaining-days value reported for licenses
	// with no expiry date.
	PermanentDays = 9999

	// issueDateLayout is the human-readable issue timestamp format.
	issueDateLayout = "2006-01-02 15:04:05"

	// expiryDateLayout accepts expiry dates with or without fractional
	// seconds. Expiry dates are naive local times.
	expiryDateLayout = "2006-01-02T15:04:05.999999"

	// ExpiryPermanent is the display value for a missing expiry date.
	ExpiryPermanent = "permanent"
)

// Payload is the signed content of a license artifact. Field names and
// formats are part of the wire format shared with issued licenses in the
// field, so they must not change.
type Payload struct {
	// LicenseType is the commercial tier, e.g. "trial" or "enterprise".
	LicenseType string `json:"license_type"`

	// Licensee identifies the customer the license was issued to.
	Licensee string `json:"licensee"`

	// MachineID is the fingerprint this license is bound to, or the
	// wildcard "*" for licenses valid on any machine.
	MachineID string `json:"machine_id"`

	// IssueDate is the issue time in "2006-01-02 15:04:05" form, kept
	// for human consumption alongside IssueTimestamp.
	IssueDate string `json:"issue_date"`

	// IssueTimestamp is the issue time as Unix epoch seconds. The
	// verifier's clock sanity check compares against this value.
	IssueTimestamp float64 `json:"issue_timestamp"`

	// Features lists enabled capability tags. Never null on the wire;
	// an empty grant serializes as [].
	Features []string `json:"features"`

	// ExpiryDate is an ISO-8601 local timestamp, or empty for a
	// permanent license.
	ExpiryDate string `json:"expiry_date"`
}

// Canonical returns the payload's canonical JSON serialization: compact,
// keys sorted. Signatures are computed over exactly these bytes, so issuer
// and verifier must agree on them byte for byte.
func (p *Payload) Canonical() ([]byte, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}

	// encoding/json sorts map keys, which provides the canonical order.
	data, err := json.Marshal(map[string]any{
		"license_type":    p.LicenseType,
		"licensee":        p.Licensee,
		"machine_id":      p.MachineID,
		"issue_date":      p.IssueDate,
		"issue_timestamp": p.IssueTimestamp,
		"features":        features,
		"expiry_date":     p.ExpiryDate,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return data, nil
}

// Permanent reports whether the license never expires.
func (p *Payload) Permanent() bool { return p.ExpiryDate == "" }

// ExpiresAt parses the expiry date in local time. ok is false for
// permanent licenses. A malformed date returns an error; verification
// treats that as an invalid artifact.
func (p *Payload) ExpiresAt() (expiry time.Time, ok bool, err error) {
	if p.Permanent() {
		return time.Time{}, false, nil
	}
	expiry, err = time.ParseInLocation(expiryDateLayout, p.ExpiryDate, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse expiry date %q: %w", p.ExpiryDate, err)
	}
	return expiry, true, nil
}

// RemainingDays returns whole days until expiry as of now, PermanentDays
// for permanent licenses, and 0 once expired. Partial days round down, so
// a license expiring tomorrow reports one day.
func (p *Payload) RemainingDays(now time.Time) (int, error) {
	expiry, ok, err := p.ExpiresAt()
	if err != nil {
		return 0, err
	}
	if !ok {
		return PermanentDays, nil
	}
	left := expiry.Sub(now)
	if left <= 0 {
		return 0, nil
	}
	return int(left.Hours() / 24), nil
}

// ExpiryDisplay returns the expiry date for human consumption.
func (p *Payload) ExpiryDisplay() string {
	if p.Permanent() {
		return ExpiryPermanent
	}
	return p.ExpiryDate
}
