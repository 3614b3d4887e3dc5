package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first run: users can start without creating a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validation range constants.
const (
	minWait       = 10 * time.Millisecond
	minPoll       = 1 * time.Second
	minTimeout    = 100 * time.Millisecond
	maxRetryLimit = 10
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Remote.PollInterval.Std() < minPoll {
		errs = append(errs, fmt.Errorf("remote.poll_interval: must be at least %s, got %s",
			minPoll, cfg.Remote.PollInterval.Std()))
	}

	if cfg.Remote.Timeout.Std() < minTimeout {
		errs = append(errs, fmt.Errorf("remote.timeout: must be at least %s, got %s",
			minTimeout, cfg.Remote.Timeout.Std()))
	}

	if cfg.Remote.MaxRetries < 0 || cfg.Remote.MaxRetries > maxRetryLimit {
		errs = append(errs, fmt.Errorf("remote.max_retries: must be between 0 and %d, got %d",
			maxRetryLimit, cfg.Remote.MaxRetries))
	}

	if cfg.AutoSave.Wait.Std() < minWait {
		errs = append(errs, fmt.Errorf("autosave.wait: must be at least %s, got %s",
			minWait, cfg.AutoSave.Wait.Std()))
	}

	if cfg.AutoSave.MaxWait.Std() != 0 && cfg.AutoSave.MaxWait.Std() < cfg.AutoSave.Wait.Std() {
		errs = append(errs, fmt.Errorf("autosave.max_wait: must be zero or at least autosave.wait (%s), got %s",
			cfg.AutoSave.Wait.Std(), cfg.AutoSave.MaxWait.Std()))
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q",
			cfg.Logging.LogLevel))
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be text or json, got %q",
			cfg.Logging.LogFormat))
	}

	return errors.Join(errs...)
}
