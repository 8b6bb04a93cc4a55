package license

import (
	"errors"
	"fmt"
)

// Sentinel errors form a small hierarchy: every specific failure wraps
// ErrLicense, so callers can match the whole family or a single kind with
// errors.Is. Returned errors carry operator-facing detail on top of the
// sentinel, e.g. "license invalid: signature verification failed".
var (
	// ErrLicense is the root of all license failures.
	ErrLicense = errors.New("license")

	// ErrLicenseNotFound reports that no artifact exists at the
	// configured path. The machine has not been activated.
	ErrLicenseNotFound = fmt.Errorf("%w not found", ErrLicense)

	// ErrLicenseInvalid reports an artifact that exists but cannot be
	// accepted: malformed encoding, bad signature, wrong machine, or
	// clock tampering under strict validation.
	ErrLicenseInvalid = fmt.Errorf("%w invalid", ErrLicense)

	// ErrLicenseExpired reports a well-formed, correctly signed license
	// whose expiry date has passed.
	ErrLicenseExpired = fmt.Errorf("%w expired", ErrLicense)
)

// Status labels used in API responses and CLI output.
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusInvalid      = "invalid"
	StatusNotActivated = "not_activated"
	StatusError        = "error"
)

// Classify maps a verification error to its status label. A nil error is
// an active license.
func Classify(err error) string {
	switch {
	case err == nil:
		return StatusActive
	case errors.Is(err, ErrLicenseNotFound):
		return StatusNotActivated
	case errors.Is(err, ErrLicenseExpired):
		return StatusExpired
	case errors.Is(err, ErrLicenseInvalid):
		return StatusInvalid
	default:
		return StatusError
	}
}
