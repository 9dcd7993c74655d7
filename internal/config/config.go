// Package config handles application configuration via TOML files.
// Configuration is stored at ~/.config/oxviewer/config.toml and includes
// the plugin home, HTTP client and cache settings, logging and the sites
// searched by the built-in generic section.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/litescript/oxviewer/internal/cache"
)

// Config holds application configuration
type Config struct {
	// Home holds plugins.json, the plugins directory and drop-ins.
	Home    string         `toml:"home"`
	HTTP    HTTPConfig     `toml:"http"`
	Cache   CacheConfig    `toml:"cache"`
	Log     LogConfig      `toml:"log"`
	Sources []SourceConfig `toml:"sources"`
}

// HTTPConfig tunes the client shared by plugins
type HTTPConfig struct {
	UserAgent string   `toml:"user_agent"`
	Timeout   Duration `toml:"timeout"`
	// RateLimit is in requests per second; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// CacheConfig selects where GET responses are cached
type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend string            `toml:"backend"`
	TTL     Duration          `toml:"ttl"`
	Redis   cache.RedisConfig `toml:"redis"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level"`
	// File is the log file, or "stderr".
	File        string `toml:"file"`
	Development bool   `toml:"development"`
}

// SourceConfig is a site searched by the generic section
type SourceConfig struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
}

// Duration is a time.Duration written as a string such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default configuration
func Default() Config {
	home, _ := os.UserHomeDir()
	appHome := filepath.Join(home, ".local", "share", "oxviewer")

	return Config{
		Home: appHome,
		HTTP: HTTPConfig{
			Timeout:   Duration{15 * time.Second},
			RateLimit: 4,
			Burst:     4,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration{10 * time.Minute},
			Redis: cache.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "oxviewer:",
			},
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(appHome, "oxviewer.log"),
		},
		// Sources: nil - the generic section is hidden until one is added
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "oxviewer", "config.toml")
}

// Load reads config from disk or returns defaults. A .env file in the
// working directory is loaded first; OXV_HOME and OXV_LOG_LEVEL override
// the file.
func Load() (Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OXV_HOME"); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv("OXV_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OXV_REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Addr = v
	}
}

// Save writes config to disk
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile is Save with an explicit path.
func SaveFile(path string, cfg Config) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnabledSources returns the sources the generic section should search
func (c Config) EnabledSources() []SourceConfig {
	var enabled []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
