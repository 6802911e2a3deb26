// Package config loads ccquota settings from a TOML file with environment
// overrides. It never stores credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides.
const (
	EnvDebugPort  = "CCQUOTA_DEBUG_PORT"
	EnvProfileDir = "CCQUOTA_PROFILE_DIR"
)

// Config holds all ccquota configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Browser BrowserConfig `toml:"browser"`
	Remote  RemoteConfig  `toml:"remote"`
	Logs    LogsConfig    `toml:"logs"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// GeneralConfig holds logging preferences.
type GeneralConfig struct {
	Verbose bool   `toml:"verbose"`
	LogFile string `toml:"log_file,omitempty"`
}

// BrowserConfig controls how the browser is attached to or launched.
type BrowserConfig struct {
	DebugPort  int    `toml:"debug_port"`
	ProfileDir string `toml:"profile_dir,omitempty"`
	Headless   bool   `toml:"headless"`
	Bin        string `toml:"bin,omitempty"`
}

// RemoteConfig describes the claude.ai usage page.
type RemoteConfig struct {
	UsageURL       string   `toml:"usage_url"`
	AuthMarkers    []string `toml:"auth_markers"`
	LoginTimeout   Duration `toml:"login_timeout"`
	PageTimeout    Duration `toml:"page_timeout"`
	CaptureTimeout Duration `toml:"capture_timeout"`
}

// LogsConfig points at Claude Code session logs.
type LogsConfig struct {
	DataDirs         []string `toml:"data_dirs,omitempty"`
	IncludeSubagents bool     `toml:"include_subagents"`
	DefaultWindow    Duration `toml:"default_window"`
}

// DaemonConfig holds polling service settings.
type DaemonConfig struct {
	Addr      string   `toml:"addr"`
	Interval  Duration `toml:"interval"`
	EventsBuf int      `toml:"events_buffer"`
	Retention Duration `toml:"retention"`
}

// Duration is a time.Duration that reads and writes as "5m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Browser: BrowserConfig{
			DebugPort: 9222,
			Headless:  true,
		},
		Remote: RemoteConfig{
			UsageURL:       "https://claude.ai/settings/usage",
			AuthMarkers:    []string{"/login", "/logout", "/oauth"},
			LoginTimeout:   Duration{5 * time.Minute},
			PageTimeout:    Duration{30 * time.Second},
			CaptureTimeout: Duration{10 * time.Second},
		},
		Logs: LogsConfig{
			IncludeSubagents: true,
		},
		Daemon: DaemonConfig{
			Addr:      "127.0.0.1:8788",
			Interval:  Duration{5 * time.Minute},
			EventsBuf: 200,
			Retention: Duration{30 * 24 * time.Hour},
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccquota")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ccquota")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the directory for the history database and daemon state.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccquota")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "ccquota")
}

// ProfileDir returns the browser profile directory, honoring the env override.
func (c Config) ProfileDir() string {
	if dir := os.Getenv(EnvProfileDir); dir != "" {
		return dir
	}
	if c.Browser.ProfileDir != "" {
		return c.Browser.ProfileDir
	}
	return filepath.Join(DataDir(), "profile")
}

// DebugPort returns the browser debug port, honoring the env override.
func (c Config) DebugPort() int {
	if v := os.Getenv(EnvDebugPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	return c.Browser.DebugPort
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads the config at path over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("config: browser.debug_port %d out of range", c.Browser.DebugPort)
	}
	if c.Remote.UsageURL == "" {
		return fmt.Errorf("config: remote.usage_url is empty")
	}
	if c.Daemon.Interval.Duration < 0 {
		return fmt.Errorf("config: daemon.interval must not be negative")
	}
	return nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes the config to path with owner-only permissions.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user-chosen config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
