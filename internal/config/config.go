package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"voxd/internal/provider"
)

// envPrefix namespaces every environment variable this package reads.
const envPrefix = "VOXD"

// Config is the complete voxd configuration.
type Config struct {
	// DataDir anchors every relative path in the configuration. A
	// relative DataDir resolves against the executable's directory.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`

	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	TimeGuard TimeGuardConfig `yaml:"timeguard" envconfig:"TIMEGUARD"`
	Providers ProvidersConfig `yaml:"providers" envconfig:"PROVIDERS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig tunes the status API's HTTP server.
type ServerConfig struct {
	Host            string          `yaml:"host" envconfig:"HOST"`
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     Duration        `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    Duration        `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     Duration        `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RateLimitConfig tunes the status API request limiter.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"min=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=0"`
}

// LicenseConfig locates the license artifact and the verification key.
type LicenseConfig struct {
	// File is the license artifact path.
	File string `yaml:"file" envconfig:"FILE" validate:"required"`

	// PublicKey is the verification key as inline PEM. Takes precedence
	// over PublicKeyFile when both are set.
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY"`

	// PublicKeyFile is a path to the verification key PEM.
	PublicKeyFile string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE"`

	// StrictTimeValidation makes clock-tamper evidence fail verification.
	// Disabling demotes it to a logged degraded signal.
	StrictTimeValidation bool `yaml:"strict_time_validation" envconfig:"STRICT_TIME_VALIDATION"`

	// RecheckInterval re-runs verification periodically while the daemon
	// is up. Zero disables rechecking after the startup gate.
	RecheckInterval Duration `yaml:"recheck_interval" envconfig:"RECHECK_INTERVAL"`
}

// TimeGuardConfig tunes clock-tamper detection.
type TimeGuardConfig struct {
	// StateFile is the encrypted clock-history file.
	StateFile string `yaml:"state_file" envconfig:"STATE_FILE" validate:"required"`

	// ToleranceSeconds is the slack before a clock discrepancy counts as
	// tampering.
	ToleranceSeconds int `yaml:"tolerance_seconds" envconfig:"TOLERANCE_SECONDS" validate:"min=0"`

	// ReferenceFiles overrides the OS-specific reference file candidates.
	// Leave unset for the built-in list; set to an empty list to disable
	// the reference-file check entirely.
	ReferenceFiles []string `yaml:"reference_files" envconfig:"REFERENCE_FILES"`
}

// ProvidersConfig selects the pipeline providers constructed after the
// license gate passes. Options nest too deeply for environment variables,
// so this section is YAML-only apart from the selection map.
type ProvidersConfig struct {
	// Selected maps a capability tag to the provider name to construct.
	Selected map[string]string `yaml:"selected" envconfig:"SELECTED"`

	// Options carries per-provider option maps, keyed by provider name.
	Options map[string]map[string]any `yaml:"options" ignored:"true"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the built-in configuration. It is usable as-is for a
// single-machine deployment with the license artifact in the data
// directory.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		License: LicenseConfig{
			File:                 LicenseFileName,
			StrictTimeValidation: true,
			RecheckInterval:      Duration(time.Hour),
		},
		TimeGuard: TimeGuardConfig{
			StateFile:        TimeStateFileName,
			ToleranceSeconds: 300,
		},
		Providers: ProvidersConfig{
			Selected: map[string]string{},
			Options:  map[string]map[string]any{},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/voxd.log",
		},
	}
}

// Load assembles the configuration: defaults, then the YAML file, then
// environment variables, each layer overriding the previous. An empty
// path searches the usual locations; a missing file is only an error when
// the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges, enumerations and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"license.recheck_interval", c.License.RecheckInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}

	for tag := range c.Providers.Selected {
		if !provider.Capability(tag).Valid() {
			return fmt.Errorf("unknown provider capability %q (known: %v)",
				tag, provider.Capabilities())
		}
	}
	return nil
}

// Tolerance returns the tamper-detection tolerance as a duration.
func (t TimeGuardConfig) Tolerance() time.Duration {
	return time.Duration(t.ToleranceSeconds) * time.Second
}

// findConfigFile checks the usual locations for a config file and returns
// the first hit, or empty when none exists.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	if dir, err := executableDir(); err == nil {
		locations = append(locations, filepath.Join(dir, "config.yaml"))
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}
