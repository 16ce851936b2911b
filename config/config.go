// ABOUTME: Runtime configuration stored at XDG paths with LEADSHEET_ environment overrides
// ABOUTME: Resolves database, secure store and layout paths plus background job intervals
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"

	"github.com/harperreed/leadsheet/rowmap"
)

// AppName names the XDG subdirectories.
const AppName = "leadsheet"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEADSHEET"

// DefaultSheetsEndpoint is the Sheets API base URL.
const DefaultSheetsEndpoint = "https://sheets.googleapis.com"

// Default intervals.
const (
	DefaultCacheFreshness  = 5 * time.Minute
	DefaultRefreshInterval = 30 * time.Second
	DefaultNotifyInterval  = 60 * time.Second
	DefaultProbeInterval   = 15 * time.Second
)

// Config holds local settings. Secrets (API key, service account) are
// resolved by the credential provider, not stored here.
type Config struct {
	SheetsEndpoint  string   `json:"sheets_endpoint,omitempty" envconfig:"SHEETS_ENDPOINT"`
	LayoutFile      string   `json:"layout_file,omitempty" envconfig:"LAYOUT_FILE"`
	DotenvFile      string   `json:"dotenv_file,omitempty" envconfig:"DOTENV_FILE"`
	DBPath          string   `json:"db_path,omitempty" envconfig:"DB_PATH"`
	StoreDir        string   `json:"store_dir,omitempty" envconfig:"STORE_DIR"`
	StoreKeyFile    string   `json:"store_key_file,omitempty" envconfig:"STORE_KEY_FILE"`
	StorePassphrase string   `json:"-" envconfig:"STORE_PASSPHRASE"`
	LogLevel        string   `json:"log_level,omitempty" envconfig:"LOG_LEVEL"`
	Timezone        string   `json:"timezone,omitempty" envconfig:"TIMEZONE"`
	UserEmail       string   `json:"user_email,omitempty" envconfig:"USER_EMAIL"`
	CacheFreshness  Duration `json:"cache_freshness,omitempty" envconfig:"CACHE_FRESHNESS"`
	RefreshInterval Duration `json:"refresh_interval,omitempty" envconfig:"REFRESH_INTERVAL"`
	NotifyInterval  Duration `json:"notify_interval,omitempty" envconfig:"NOTIFY_INTERVAL"`
	ProbeInterval   Duration `json:"probe_interval,omitempty" envconfig:"PROBE_INTERVAL"`
}

// ConfigDir returns the XDG config directory for leadsheet.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath returns the path of config.json.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataDir returns the XDG data directory for leadsheet.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Load reads config.json (if present), applies environment overrides and
// fills defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer func() { _ = f.Close() }()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to config.json with restricted permissions.
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo is Save with an explicit file path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SheetsEndpoint == "" {
		c.SheetsEndpoint = DefaultSheetsEndpoint
	}
	c.SheetsEndpoint = strings.TrimRight(c.SheetsEndpoint, "/")
	if c.DBPath == "" {
		c.DBPath = filepath.Join(DataDir(), "leadsheet.db")
	}
	if c.StoreDir == "" {
		c.StoreDir = filepath.Join(DataDir(), "store")
	}
	if c.StoreKeyFile == "" {
		c.StoreKeyFile = filepath.Join(DataDir(), "device.key")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheFreshness == 0 {
		c.CacheFreshness = Duration(DefaultCacheFreshness)
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if c.NotifyInterval == 0 {
		c.NotifyInterval = Duration(DefaultNotifyInterval)
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = Duration(DefaultProbeInterval)
	}
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	for name, d := range map[string]Duration{
		"cache_freshness":  c.CacheFreshness,
		"refresh_interval": c.RefreshInterval,
		"notify_interval":  c.NotifyInterval,
		"probe_interval":   c.ProbeInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// Location returns the configured time zone, or the local one.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Layouts loads the worksheet layouts, applying the layout file when set.
func (c *Config) Layouts() (rowmap.Layouts, error) {
	return rowmap.LoadLayouts(c.LayoutFile)
}
