// Package license implements offline license enforcement for voxd.
// Deployments carry a detached, RSA-PSS-signed artifact bound to one
// machine; verification never leaves the host.
//
// # Architecture Overview
//
// The package is built from small pieces:
//
//	- Payload: the signed claims (licensee, machine, expiry, features)
//	- Codec: the artifact wire format (base64 JSON envelope)
//	- Issuer: vendor-side minting with the private key
//	- Verifier: deployment-side verification with the public key
//	- Cache: short-lived verdict reuse for request-path callers
//
// # Verification Flow
//
// A verification pass runs these steps in order:
//
//	1. Read and decode the artifact from disk
//	2. Verify the RSA-PSS signature over the canonical payload
//	3. Match the embedded machine fingerprint against this host
//	4. Run clock-tamper detection (internal/timeguard)
//	5. Sanity-check the clock against the recorded issue time
//	6. Check the expiry date and compute remaining days
//
// Cheap structural checks run first so a mangled artifact never consumes
// tamper-detection state.
//
// # Machine Binding
//
// Artifacts name the fingerprint of the machine they were issued for
// (internal/machineid), or the wildcard "*" for site licenses. A
// fingerprint mismatch is an invalid license, reported with both
// fingerprints in masked form.
//
// # Clock Tampering
//
// Expiry enforcement on an offline host is only as good as the host's
// clock. The Verifier consults a timeguard.Detector and, under strict
// validation, treats tamper evidence as an invalid license. Outside
// strict mode the evidence is logged and surfaced on the verdict as a
// degraded signal.
//
// # Error Handling
//
// Failures wrap a small sentinel hierarchy rooted at ErrLicense:
//
//	- ErrLicenseNotFound: no artifact at the configured path
//	- ErrLicenseInvalid: artifact present but unacceptable
//	- ErrLicenseExpired: well-formed and signed, past its expiry
//
// Classify maps any of these to the status labels used in API responses
// and CLI output.
package license
