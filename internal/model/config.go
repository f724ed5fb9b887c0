package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// APIConfig points at the notification backend.
type APIConfig struct {
	// BaseURL is the REST root (e.g. https://api.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SocketURL is the live channel root. Empty means derive from BaseURL.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SyncConfig tunes the notification pipeline.
type SyncConfig struct {
	// PollIntervalSec is the fallback poll tick.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// GraceSec suppresses a poll if any sync succeeded this recently.
	GraceSec int `mapstructure:"grace_sec" yaml:"grace_sec"`

	// AlertWindowSec is how long an alerted id is remembered in memory.
	AlertWindowSec int `mapstructure:"alert_window_sec" yaml:"alert_window_sec"`

	// RemovalAfterMisses is how many consecutive full sets a record may be
	// missing from before it is dropped locally.
	RemovalAfterMisses int `mapstructure:"removal_after_misses" yaml:"removal_after_misses"`

	ReconnectMinMs int `mapstructure:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMs int `mapstructure:"reconnect_max_ms" yaml:"reconnect_max_ms"`
}

// PollInterval returns the poll tick as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Grace returns the post-sync suppression period.
func (c SyncConfig) Grace() time.Duration {
	return time.Duration(c.GraceSec) * time.Second
}

// AlertWindow returns the in-memory alert de-duplication window.
func (c SyncConfig) AlertWindow() time.Duration {
	return time.Duration(c.AlertWindowSec) * time.Second
}

// ReconnectBackoff returns the live channel's reconnect delay bounds.
func (c SyncConfig) ReconnectBackoff() (minDelay, maxDelay time.Duration) {
	return time.Duration(c.ReconnectMinMs) * time.Millisecond,
		time.Duration(c.ReconnectMaxMs) * time.Millisecond
}

// TelegramConfig forwards alerts to a Telegram chat. The bot token is
// kept in the keyring, not in the file.
type TelegramConfig struct {
	Enabled bool  `mapstructure:"enabled" yaml:"enabled"`
	ChatID  int64 `mapstructure:"chat_id" yaml:"chat_id"`
}

// AlertConfig selects where local alerts are shown.
type AlertConfig struct {
	Bell     bool           `mapstructure:"bell" yaml:"bell"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme    string `mapstructure:"theme" yaml:"theme"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
}

// LedgerConfig locates the alert ledger database. An empty path disables it.
type LedgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls where the process log goes in TUI mode.
type LogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Alerts  AlertConfig   `mapstructure:"alerts" yaml:"alerts"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ResolvedSocketURL returns the live channel URL, deriving it from the REST
// base URL when not configured explicitly.
func (c APIConfig) ResolvedSocketURL() string {
	if s := strings.TrimSpace(c.SocketURL); s != "" {
		return strings.TrimRight(s, "/")
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// configDir returns ~/.config/homenotify, or "." if the home directory
// cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "homenotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/homenotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://127.0.0.1:3000",
			TimeoutSec: 15,
		},
		Sync: SyncConfig{
			PollIntervalSec:    30,
			GraceSec:           25,
			AlertWindowSec:     120,
			RemovalAfterMisses: 2,
			ReconnectMinMs:     500,
			ReconnectMaxMs:     30000,
		},
		Alerts: AlertConfig{
			Bell: true,
		},
		Display: DisplayConfig{
			Theme:    "default",
			PageSize: 10,
		},
		Ledger: LedgerConfig{
			Path: filepath.Join(configDir(), "alerts.db"),
		},
		Log: LogConfig{
			File: filepath.Join(configDir(), "homenotify.log"),
		},
	}
}

// newViper builds a viper instance bound to path with defaults and
// HOMENOTIFY_* environment overrides.
func newViper(path string) *viper.Viper {
	d := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("homenotify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.socket_url", d.API.SocketURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("sync.poll_interval_sec", d.Sync.PollIntervalSec)
	v.SetDefault("sync.grace_sec", d.Sync.GraceSec)
	v.SetDefault("sync.alert_window_sec", d.Sync.AlertWindowSec)
	v.SetDefault("sync.removal_after_misses", d.Sync.RemovalAfterMisses)
	v.SetDefault("sync.reconnect_min_ms", d.Sync.ReconnectMinMs)
	v.SetDefault("sync.reconnect_max_ms", d.Sync.ReconnectMaxMs)
	v.SetDefault("alerts.bell", d.Alerts.Bell)
	v.SetDefault("alerts.telegram.enabled", false)
	v.SetDefault("alerts.telegram.chat_id", 0)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.page_size", d.Display.PageSize)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("log.file", d.Log.File)
	return v
}

// decode unmarshals v into a config and fills in zero values that would
// otherwise break the pipeline.
func decode(v *viper.Viper, path string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	d := defaultAppConfig()
	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = d.Sync.PollIntervalSec
	}
	if cfg.Sync.GraceSec < 0 {
		cfg.Sync.GraceSec = 0
	}
	if cfg.Sync.RemovalAfterMisses <= 0 {
		cfg.Sync.RemovalAfterMisses = d.Sync.RemovalAfterMisses
	}
	if cfg.Sync.ReconnectMinMs <= 0 {
		cfg.Sync.ReconnectMinMs = d.Sync.ReconnectMinMs
	}
	if cfg.Sync.ReconnectMaxMs < cfg.Sync.ReconnectMinMs {
		cfg.Sync.ReconnectMaxMs = cfg.Sync.ReconnectMinMs
	}
	if cfg.Display.PageSize <= 0 {
		cfg.Display.PageSize = d.Display.PageSize
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = d.API.TimeoutSec
	}
	return cfg, nil
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration with
// environment overrides applied.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	return decode(v, path)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("sync", cfg.Sync)
	v.Set("alerts", cfg.Alerts)
	v.Set("display", cfg.Display)
	v.Set("ledger", cfg.Ledger)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// WatchConfig re-reads the file at path whenever it changes on disk and
// passes the new configuration to onChange. Parse failures are reported
// through onError and the previous configuration stays in effect.
func WatchConfig(path string, onChange func(*AppConfig), onError func(error)) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if onError != nil {
			onError(fmt.Errorf("reading config %s: %w", path, err))
		}
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v, e.Name)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
