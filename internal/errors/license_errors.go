package errors

import (
	"errors"
	"net/http"

	"voxd/internal/license"
)

// MapLicenseError maps a license verification error to RFC 7807 problem
// details. The instance should be the request path.
func MapLicenseError(err error, traceID, instance string) *ProblemDetails {
	switch {
	case errors.Is(err, license.ErrLicenseNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeLicenseNotFound,
			"License Not Found",
			"No license file is installed on this machine.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("license_status", license.StatusNotActivated)

	case errors.Is(err, license.ErrLicenseExpired):
		return NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseExpired,
			"License Expired",
			"The installed license has expired. Renew it to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("license_status", license.StatusExpired)

	case errors.Is(err, license.ErrLicenseInvalid):
		return NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseInvalid,
			"License Invalid",
			"The installed license cannot be accepted on this machine.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("license_status", license.StatusInvalid)

	case errors.Is(err, license.ErrLicense):
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeLicenseCheckFailed,
			"License Check Failed",
			"License verification could not be completed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("license_status", license.StatusError)

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID)
	}
}

// LicenseGateProblem builds the rejection response the license gate returns
// for a failed verdict. The status is one of the license status labels.
func LicenseGateProblem(status, message, traceID, instance string) *ProblemDetails {
	var problem *ProblemDetails

	switch status {
	case license.StatusNotActivated:
		problem = NewProblemDetails(
			http.StatusPreconditionRequired,
			TypeLicenseNotActivated,
			"License Not Activated",
			"No license has been installed. Install a license to use this service.",
			instance,
		)
	case license.StatusExpired:
		problem = NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseExpired,
			"License Expired",
			"The installed license has expired. Renew it to continue.",
			instance,
		)
	case license.StatusInvalid:
		problem = NewProblemDetails(
			http.StatusForbidden,
			TypeLicenseInvalid,
			"License Invalid",
			"The installed license cannot be accepted on this machine.",
			instance,
		)
	default:
		problem = NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeLicenseCheckFailed,
			"License Check Failed",
			"License verification could not be completed. Try again shortly.",
			instance,
		)
	}

	problem.WithExtension("trace_id", traceID).
		WithExtension("license_status", status)
	if message != "" {
		problem.WithExtension("reason", message)
	}
	return problem
}
