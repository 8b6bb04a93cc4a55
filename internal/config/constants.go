package config

// Application identity and well-known file names shared by the daemon and
// the CLIs.
const (
	AppName = "voxd"

	// LicenseFileName is the default artifact name in the data directory.
	LicenseFileName = "license.lic"

	// TimeStateFileName is the clock-history file. The dot prefix keeps it
	// out of casual directory listings; on Windows the store additionally
	// sets the hidden attribute.
	TimeStateFileName = ".time_state"

	// Key file names used by the issuer tool.
	PrivateKeyFileName = "license_private.pem"
	PublicKeyFileName  = "license_public.pem"
)
