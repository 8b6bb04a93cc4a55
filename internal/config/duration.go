package config

import "time"

// Duration is a time.Duration that parses Go duration strings ("15s",
// "1h30m") from both YAML and environment variables. Plain time.Duration
// only gets that treatment from envconfig, not from the YAML decoder.
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler for envconfig.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for the config file.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

// MarshalYAML keeps round-tripped config files readable.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
