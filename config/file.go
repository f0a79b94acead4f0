package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/threadmood/scraper"
	"github.com/pevans/threadmood/thread"
	"gopkg.in/yaml.v3"
)

// DatesConfig controls how post dates are resolved and reported.
type DatesConfig struct {
	Timezone       string `yaml:"timezone"`
	OnUnrecognized string `yaml:"on_unrecognized"`
	Sort           string `yaml:"sort"`
}

// StorageConfig represents storage configuration from config file.
type StorageConfig struct {
	HistoryDSN string `yaml:"history_dsn"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FileConfig represents the structure of ~/.threadmood/config.yaml.
type FileConfig struct {
	Thread  scraper.ThreadConfig `yaml:"thread"`
	Fetch   thread.FetchConfig   `yaml:"fetch"`
	Dates   DatesConfig          `yaml:"dates"`
	Storage StorageConfig        `yaml:"storage"`
	Log     LogConfig            `yaml:"log"`
}

// Default returns the configuration used when no file or environment
// override says otherwise.
func Default() *FileConfig {
	return &FileConfig{
		Thread: *scraper.NewThreadConfig(),
		Fetch:  *thread.DefaultFetchConfig(),
		Dates: DatesConfig{
			Timezone:       "Local",
			OnUnrecognized: "fail",
			Sort:           "chronological",
		},
		Storage: StorageConfig{
			HistoryDSN: "threadmood.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.threadmood/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".threadmood", "config.yaml"), nil
}

// LoadConfigFile loads configuration from path, layered over Default.
// Returns nil if the file doesn't exist (not an error). Returns error if the
// file exists but cannot be parsed.
func LoadConfigFile(path string) (*FileConfig, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys missing from the file keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
