package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // timezone lookups must work in minimal containers

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "America/Chicago"
	defaultTitle        = "DFW Mat Side"
	defaultCacheDir     = "./cache/sources"
	defaultEventMinutes = 120
	defaultLogLevel     = "info"

	DefaultScheduleSource  = "DFW Open Mats - Tracker - Open Mats.csv"
	DefaultDirectorySource = "DFW Open Mats - Tracker - Schools.csv"
)

// SourcesConfig holds the two source locations. Each is a file path or an
// http(s) URL (e.g. a published Google Sheets CSV export).
type SourcesConfig struct {
	Schedule  string `yaml:"schedule" json:"schedule"`
	Directory string `yaml:"directory" json:"directory"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that decides what "today" is.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Title is the page heading.
	Title string `yaml:"title" json:"title"`

	Sources SourcesConfig `yaml:"sources" json:"sources"`

	// CacheDir stores bodies of remote sources for revalidation and
	// offline fallback.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Watch invalidates the cache when a local source file changes.
	Watch bool `yaml:"watch" json:"watch"`

	// RefreshCron is an optional cron schedule (e.g. "0 */6 * * *") that
	// reloads the sources. Empty disables scheduled reloads.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// EventMinutes is the session length used in the calendar feed.
	EventMinutes int `yaml:"event_minutes" json:"event_minutes"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		Title:    defaultTitle,
		Sources: SourcesConfig{
			Schedule:  DefaultScheduleSource,
			Directory: DefaultDirectorySource,
		},
		CacheDir:     defaultCacheDir,
		Watch:        true,
		RefreshCron:  "",
		EventMinutes: defaultEventMinutes,
		LogLevel:     defaultLogLevel,
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Sources.Schedule == "" {
		c.Sources.Schedule = DefaultScheduleSource
	}
	if c.Sources.Directory == "" {
		c.Sources.Directory = DefaultDirectorySource
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.EventMinutes <= 0 {
		c.EventMinutes = defaultEventMinutes
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports settings that cannot be defaulted: an unknown timezone or
// a malformed refresh schedule.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
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
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".matside-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
