// Package config loads application configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RefreshTier is one staleness policy: statuses no older than MaxAge are
// re-validated at least every Frequency.
type RefreshTier struct {
	MaxAge    time.Duration `mapstructure:"max-age"`
	Frequency time.Duration `mapstructure:"frequency"`
}

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `mapstructure:"port"`

	Mastodon struct {
		// BaseURL is the instance to mirror, e.g. https://dice.camp.
		BaseURL string `mapstructure:"base-url"`

		// UserAgent is sent on every API request.
		UserAgent string `mapstructure:"user-agent"`
	} `mapstructure:"mastodon"`

	Streaming struct {
		// Enabled turns on the live streaming listener.
		Enabled bool `mapstructure:"enabled"`

		// URL is the websocket streaming endpoint. Derived from the
		// instance base URL when empty.
		URL string `mapstructure:"url"`
	} `mapstructure:"streaming"`

	Timeline struct {
		// UpdateFrequency is how often the merge cycle runs. It also
		// bounds the max-age advertised to HTTP clients.
		UpdateFrequency time.Duration `mapstructure:"update-frequency"`

		// StatusesCount caps how many statuses a timeline query returns.
		StatusesCount int `mapstructure:"statuses-count"`

		// StaleWhileRevalidate is the grace window added to cache
		// directives on top of the update frequency.
		StaleWhileRevalidate time.Duration `mapstructure:"stale-while-revalidate"`
	} `mapstructure:"timeline"`

	Refresh struct {
		// Tiers are the staleness policies, any order.
		Tiers []RefreshTier `mapstructure:"tiers"`

		// ListLimit bounds how many stale statuses one cycle picks up
		// per tier.
		ListLimit int `mapstructure:"list-limit"`
	} `mapstructure:"refresh"`

	Storage struct {
		// DataDir is the root of the sharded status blobs.
		DataDir string `mapstructure:"data-dir"`

		// DatabasePath is the sqlite index file.
		DatabasePath string `mapstructure:"database-path"`

		// CacheSize is the blob LRU capacity in documents.
		CacheSize int `mapstructure:"cache-size"`
	} `mapstructure:"storage"`
}

// StreamingURL returns the websocket endpoint, deriving it from the instance
// base URL when not set explicitly.
func (c *Config) StreamingURL() string {
	if c.Streaming.URL != "" {
		return c.Streaming.URL
	}
	base := c.Mastodon.BaseURL
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/api/v1/streaming"
}

// Load reads config.toml from dir (or the working directory when empty) and
// applies TAGMIRROR_* environment overrides.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetDefault("port", 1337)
	v.SetDefault("mastodon.user-agent", "tagmirror")
	v.SetDefault("streaming.enabled", false)
	v.SetDefault("timeline.update-frequency", "15m")
	v.SetDefault("timeline.statuses-count", 100)
	v.SetDefault("timeline.stale-while-revalidate", "5m")
	v.SetDefault("refresh.list-limit", 200)
	v.SetDefault("storage.data-dir", "data/statuses")
	v.SetDefault("storage.database-path", "data/db.sqlite3")
	v.SetDefault("storage.cache-size", 2048)

	v.SetEnvPrefix("TAGMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus env cover everything
		// except the instance URL, validated below.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Mastodon.BaseURL == "" {
		return nil, fmt.Errorf("mastodon.base-url is required")
	}
	if cfg.Timeline.UpdateFrequency <= 0 {
		return nil, fmt.Errorf("timeline.update-frequency must be positive")
	}
	for _, tier := range cfg.Refresh.Tiers {
		if tier.MaxAge <= 0 || tier.Frequency <= 0 {
			return nil, fmt.Errorf("refresh tiers need positive max-age and frequency")
		}
	}

	return &cfg, nil
}
