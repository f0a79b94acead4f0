package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/threadmood/report"
	"go-simpler.org/env"
)

// envOverrides lists the settings that can be changed from the environment.
// Unset variables leave the file value alone.
type envOverrides struct {
	HistoryDSN   string        `env:"THREADMOOD_HISTORY_DSN"`
	Timezone     string        `env:"THREADMOOD_TIMEZONE"`
	FetchTimeout time.Duration `env:"THREADMOOD_FETCH_TIMEOUT"`
	UserAgent    string        `env:"THREADMOOD_USER_AGENT"`
	LogLevel     string        `env:"THREADMOOD_LOG_LEVEL"`
	LogFormat    string        `env:"THREADMOOD_LOG_FORMAT"`
	Sort         string        `env:"THREADMOOD_SORT"`
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (DefaultPath when empty), then environment overrides. The result is
// validated.
func Load(path string) (*FileConfig, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	var overrides envOverrides
	if err := env.Load(&overrides, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if overrides.HistoryDSN != "" {
		cfg.Storage.HistoryDSN = overrides.HistoryDSN
	}
	if overrides.Timezone != "" {
		cfg.Dates.Timezone = overrides.Timezone
	}
	if overrides.FetchTimeout > 0 {
		cfg.Fetch.Timeout = overrides.FetchTimeout
	}
	if overrides.UserAgent != "" {
		cfg.Fetch.UserAgent = overrides.UserAgent
	}
	if overrides.LogLevel != "" {
		cfg.Log.Level = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		cfg.Log.Format = overrides.LogFormat
	}
	if overrides.Sort != "" {
		cfg.Dates.Sort = overrides.Sort
	}

	return nil
}

// Validate checks every section.
func (c *FileConfig) Validate() error {
	if err := c.Thread.Validate(); err != nil {
		return fmt.Errorf("thread: %w", err)
	}

	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch: timeout must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch: max_retries must not be negative, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.InitialBackoff < 0 || c.Fetch.MaxBackoff < 0 {
		return errors.New("fetch: backoff must not be negative")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("dates: %w", err)
	}
	switch c.Dates.OnUnrecognized {
	case "fail", "skip":
	default:
		return fmt.Errorf("dates: on_unrecognized must be fail or skip, got %q", c.Dates.OnUnrecognized)
	}
	if _, err := report.ParseSortOrder(c.Dates.Sort); err != nil {
		return fmt.Errorf("dates: %w", err)
	}

	if c.Storage.HistoryDSN == "" {
		return errors.New("storage: history_dsn is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// Location returns the time zone relative dates are resolved in. An empty
// name or "Local" means the system zone.
func (c *FileConfig) Location() (*time.Location, error) {
	if c.Dates.Timezone == "" || c.Dates.Timezone == "Local" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.Dates.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Dates.Timezone, err)
	}

	return loc, nil
}
