// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the draftsync CLI. Unknown keys are
// rejected with "did you mean?" suggestions so a typo in the config file
// fails loudly instead of silently falling back to a default.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	// DBPath is the SQLite database holding persisted drafts. Empty means
	// the platform default under the data directory.
	DBPath string `toml:"db_path"`

	Remote   RemoteConfig   `toml:"remote"`
	AutoSave AutoSaveConfig `toml:"autosave"`
	Logging  LoggingConfig  `toml:"logging"`
}

// RemoteConfig describes the HTTP endpoints drafts are committed to.
type RemoteConfig struct {
	// URL is fetched with GET for the authoritative value.
	URL string `toml:"url"`

	// CommitURL receives committed values via PUT. Empty means URL.
	CommitURL string `toml:"commit_url"`

	// SubscribeURL is an optional websocket endpoint; any frame on it
	// triggers a refetch.
	SubscribeURL string `toml:"subscribe_url"`

	PollInterval Duration `toml:"poll_interval"`
	Timeout      Duration `toml:"timeout"`
	MaxRetries   int      `toml:"max_retries"`
}

// AutoSaveConfig controls commit debouncing.
type AutoSaveConfig struct {
	Wait    Duration `toml:"wait"`
	MaxWait Duration `toml:"max_wait"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			PollInterval: Duration(30 * time.Second),
			Timeout:      Duration(10 * time.Second),
			MaxRetries:   3,
		},
		AutoSave: AutoSaveConfig{
			Wait:    Duration(2 * time.Second),
			MaxWait: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}
