// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppName is used for XDG directories.
const AppName = "vibestream"

// Config represents the application configuration.
type Config struct {
	Catalog      CatalogConfig           `yaml:"catalog"`
	DocStore     DocStoreConfig          `yaml:"docstore"`
	Storage      StorageConfig           `yaml:"storage"`
	Playback     PlaybackConfig          `yaml:"playback"`
	Queue        QueueConfig             `yaml:"queue"`
	Continuation ContinuationConfig      `yaml:"continuation"`
	Filters      map[string]FilterConfig `yaml:"filters"`
	Download     DownloadConfig          `yaml:"download"`
	Sync         SyncConfig              `yaml:"sync"`
	Messages     MessagesConfig          `yaml:"messages"`
}

// CatalogConfig represents the music catalog API configuration.
type CatalogConfig struct {
	BaseURL   string `yaml:"base_url" default:"https://musicapi-gray.vercel.app/api" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"15000" validate:"gte=1000,lte=120000"`
}

// DocStoreConfig represents the remote JSON document store configuration.
// An empty base URL disables remote sync.
type DocStoreConfig struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms" default:"15000" validate:"gte=1000,lte=120000"`
}

// StorageConfig represents local storage configuration.
type StorageConfig struct {
	// Path of the SQLite database. Empty means the XDG data directory.
	DatabasePath string `yaml:"database_path"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	Quality           string `yaml:"quality" default:"high" validate:"oneof=low normal high"`
	SwapGuardMs       int    `yaml:"swap_guard_ms" default:"200" validate:"gte=0,lte=5000"`
	ResolveTimeoutMs  int    `yaml:"resolve_timeout_ms" default:"10000" validate:"gte=100,lte=60000"`
	DurationEpsilonMs int    `yaml:"duration_epsilon_ms" default:"1000" validate:"gte=0"`
}

// QueueConfig represents queue configuration.
type QueueConfig struct {
	ContinuationSize int  `yaml:"continuation_size" default:"5" validate:"gte=1,lte=50"`
	FetchTimeoutMs   int  `yaml:"fetch_timeout_ms" default:"10000" validate:"gte=100,lte=60000"`
	Shuffle          bool `yaml:"shuffle"`
}

// ContinuationConfig represents the queue continuation providers.
type ContinuationConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single continuation provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a candidate filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// DownloadConfig represents download configuration.
type DownloadConfig struct {
	Quality string `yaml:"quality" default:"high" validate:"oneof=low normal high"`
	// Directory for saved copies. Empty means the XDG download directory.
	Directory string `yaml:"directory"`
	SkipFile  bool   `yaml:"skip_file"` // keep only the offline copy
	LingerMs  int    `yaml:"linger_ms" default:"2000" validate:"gte=0,lte=60000"`
}

// SyncConfig represents remote sync configuration.
type SyncConfig struct {
	DebounceMs int `yaml:"debounce_ms" default:"1000" validate:"gte=0,lte=60000"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Unavailable    string `yaml:"unavailable" default:"Can't play this track"`
	DownloadFailed string `yaml:"download_failed" default:"Download failed"`
	LoginFailed    string `yaml:"login_failed" default:"Login failed"`
	PlaybackError  string `yaml:"playback_error" default:"Playback error"`
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults. Environment variables take precedence
// over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("VIBESTREAM_CATALOG_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("VIBESTREAM_DOCSTORE_URL"); v != "" {
		c.DocStore.BaseURL = v
	}
	if v := os.Getenv("VIBESTREAM_DOCSTORE_TOKEN"); v != "" {
		c.DocStore.Token = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Continuation.Providers {
			if c.Continuation.Providers[i].Type == "lastfm" {
				if c.Continuation.Providers[i].Settings == nil {
					c.Continuation.Providers[i].Settings = map[string]any{}
				}
				c.Continuation.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// DatabasePath returns the SQLite path, resolving the XDG default.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath, nil
	}
	p, err := xdg.DataFile(filepath.Join(AppName, AppName+".db"))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve data directory")
	}
	return p, nil
}

// DownloadDirectory returns the directory for saved copies.
func (c *Config) DownloadDirectory() string {
	if c.Download.Directory != "" {
		return c.Download.Directory
	}
	return filepath.Join(xdg.UserDirs.Download, AppName)
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
