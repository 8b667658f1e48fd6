package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. All file access goes through an afero.Fs.

// BasicAuthConfig holds HTTP Basic Auth credentials for the serve mode.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Source is the Palm Desktop database to read. "-" means stdin for
	// one-shot commands; serve needs a real path.
	Source string `yaml:"source" json:"source"`

	// Encoding is the code page of strings in the database
	// (e.g. "windows-1252", "macintosh").
	Encoding string `yaml:"encoding" json:"encoding"`

	// Timezone is the IANA timezone Palm timestamps are read in
	// (e.g. "Europe/Paris"). Empty or "Local" means the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// HorizonDays is the number of future days to expand.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// BackfillDays is the number of past days to expand.
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// MaxOccurrences caps the expansion of a single event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// ProductID is written as the iCalendar PRODID.
	ProductID string `yaml:"product_id" json:"product_id"`

	// Listen is the HTTP listen address for serve.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to reload the source in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultEncoding       = "windows-1252"
	defaultHorizonDays    = 30
	defaultMaxOccurrences = 5000
	defaultListen         = "127.0.0.1:8080"
	defaultRefresh        = "*/15 * * * *"
	defaultLogLevel       = "info"
	defaultProductID      = "-//palm2ical//Palm Desktop datebook//EN"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source:         "-",
		Encoding:       defaultEncoding,
		Timezone:       "Local",
		HorizonDays:    defaultHorizonDays,
		BackfillDays:   0,
		MaxOccurrences: defaultMaxOccurrences,
		ProductID:      defaultProductID,
		Listen:         defaultListen,
		RefreshCron:    defaultRefresh,
		LogLevel:       defaultLogLevel,
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Source == "" {
		c.Source = "-"
	}
	if c.Encoding == "" {
		c.Encoding = defaultEncoding
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.ProductID == "" {
		c.ProductID = defaultProductID
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		// Unknown value; fall back to info rather than failing startup.
		c.LogLevel = defaultLogLevel
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Load loads configuration from the given YAML path on fsys.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(fsys, path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(fsys afero.Fs, path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := afero.TempFile(fsys, dir, ".palm2ical-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer fsys.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := fsys.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	return fsys.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(fsys afero.Fs, path string) error {
	return Save(fsys, path, c)
}

// Location resolves Timezone. "" and "Local" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
