// Package config loads and validates the voxd configuration. It provides
// a type-safe view of every tunable the daemon and the CLIs read.
//
// # Configuration Sources
//
// Configuration is assembled from three sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Built-in defaults (lowest priority)
//
// # Environment Variables
//
// All environment variables carry the VOXD_ prefix and follow the section
// structure of the YAML file:
//
//	VOXD_SERVER_PORT=8080
//	VOXD_LICENSE_FILE=/etc/voxd/license.lic
//	VOXD_LICENSE_STRICT_TIME_VALIDATION=true
//	VOXD_TIMEGUARD_TOLERANCE_SECONDS=300
//	VOXD_LOGGING_LEVEL=info
//
// # Path Resolution
//
// Relative paths in the configuration resolve in two steps: the data
// directory resolves against the executable's directory (never the current
// working directory, so the daemon behaves the same under systemd and in a
// shell), and every other relative path resolves against the data
// directory.
//
// # Usage
//
// Load configuration at process startup:
//
//	cfg, err := config.Load(flagConfigPath)
//	if err != nil {
//	    // report and exit; the daemon never runs half-configured
//	}
package config
