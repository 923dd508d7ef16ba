package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"campuscal/internal/fsutil"
)

// EnvAPIURL overrides APIBaseURL when set, so a deployment can point at a
// different events backend without editing the file.
const EnvAPIURL = "CAMPUSCAL_API_URL"

const (
	defaultListen         = "127.0.0.1:8080"
	defaultAPIBaseURL     = "http://localhost:8000"
	defaultTimezone       = "Europe/London"
	defaultRefreshCron    = "*/15 * * * *"
	defaultHorizonDays    = 30
	defaultTimeoutSeconds = 15
	defaultStatePath      = "./var/state.json"
	defaultCacheDir       = "./var/ics-cache"
	defaultLogLevel       = "info"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the JSON API.
	Listen string `yaml:"listen" json:"listen"`

	// APIBaseURL is the root of the remote events API
	// (GET /events, POST /upload-ics).
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// Timezone is the IANA timezone used as the wall clock for start hours,
	// weekdays and zone-naive timestamps.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string used to warm the view cache.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of days the list view looks ahead.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// RequestTimeoutSeconds bounds each call to the events API.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// StatePath is the JSON file that remembers the calendar source.
	StatePath string `yaml:"state_path" json:"state_path"`

	// CacheDir holds the conditional-GET cache for personal ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                defaultListen,
		APIBaseURL:            defaultAPIBaseURL,
		Timezone:              defaultTimezone,
		RefreshCron:           defaultRefreshCron,
		HorizonDays:           defaultHorizonDays,
		RequestTimeoutSeconds: defaultTimeoutSeconds,
		StatePath:             defaultStatePath,
		CacheDir:              defaultCacheDir,
		LogLevel:              defaultLogLevel,
		BasicAuth:             nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultTimeoutSeconds
	}
	if c.StatePath == "" {
		c.StatePath = defaultStatePath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Location resolves Timezone. An unknown zone is reported to the caller
// together with time.Local so it can log and carry on.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshaled and normalized.
//   - EnvAPIURL, when set, overrides api_base_url in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				applyEnv(cfg)
				return cfg, err
			}
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, ".campuscal-config-*.tmp")
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
