package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Storage
	StorePath string `json:"store_path" yaml:"store_path"`

	// Device
	DeviceName string `json:"device_name" yaml:"device_name"`

	Monitor  MonitorConfig  `json:"monitor" yaml:"monitor"`
	Presence PresenceConfig `json:"presence" yaml:"presence"`
	Fetch    FetchConfig    `json:"fetch" yaml:"fetch"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	API      APIConfig      `json:"api" yaml:"api"`
}

// MonitorConfig controls the periodic check pass.
type MonitorConfig struct {
	IntervalMins     int `json:"interval_mins" yaml:"interval_mins"`
	Workers          int `json:"workers" yaml:"workers"`
	CheckTimeoutSecs int `json:"check_timeout_secs" yaml:"check_timeout_secs"`

	RetryMaxAttempts      int `json:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryInitialBackoffMs int `json:"retry_initial_backoff_ms" yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int `json:"retry_max_backoff_ms" yaml:"retry_max_backoff_ms"`
}

// PresenceConfig controls presence sampling windows.
type PresenceConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	DurationSecs  int  `json:"duration_secs" yaml:"duration_secs"`
	FrequencySecs int  `json:"frequency_secs" yaml:"frequency_secs"`
}

// FetchConfig controls avatar downloads.
type FetchConfig struct {
	TimeoutSecs int    `json:"timeout_secs" yaml:"timeout_secs"`
	MaxBytes    int64  `json:"max_bytes" yaml:"max_bytes"`
	UserAgent   string `json:"user_agent" yaml:"user_agent"`
}

// NotifyConfig names the chat that receives change notifications.
// An empty JID disables notifications.
type NotifyConfig struct {
	JID string `json:"jid" yaml:"jid"`
}

// APIConfig controls the read-only status API. An empty Listen disables it.
type APIConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMins) * time.Minute
}

func (m MonitorConfig) CheckTimeout() time.Duration {
	return time.Duration(m.CheckTimeoutSecs) * time.Second
}

func (m MonitorConfig) RetryInitialBackoff() time.Duration {
	return time.Duration(m.RetryInitialBackoffMs) * time.Millisecond
}

func (m MonitorConfig) RetryMaxBackoff() time.Duration {
	return time.Duration(m.RetryMaxBackoffMs) * time.Millisecond
}

func (p PresenceConfig) Duration() time.Duration {
	return time.Duration(p.DurationSecs) * time.Second
}

func (p PresenceConfig) Frequency() time.Duration {
	return time.Duration(p.FrequencySecs) * time.Second
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStore := filepath.Join(homeDir, ".profilewatch", "store")

	return &Config{
		LogLevel:   "INFO",
		StorePath:  defaultStore,
		DeviceName: "profilewatch",
		Monitor: MonitorConfig{
			IntervalMins:          30,
			Workers:               3,
			CheckTimeoutSecs:      120,
			RetryMaxAttempts:      3,
			RetryInitialBackoffMs: 500,
			RetryMaxBackoffMs:     10000,
		},
		Presence: PresenceConfig{
			Enabled:       false,
			DurationSecs:  600,
			FrequencySecs: 5,
		},
		Fetch: FetchConfig{
			TimeoutSecs: 30,
			MaxBytes:    5 * 1024 * 1024,
			UserAgent:   "profilewatch/1.0",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, picked by
// extension. A missing file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads configPath (if set), applies PROFILEWATCH_* environment
// overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		var err error
		if cfg, err = LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PROFILEWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROFILEWATCH_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("PROFILEWATCH_DEVICE_NAME"); v != "" {
		cfg.DeviceName = v
	}
	envInt("PROFILEWATCH_INTERVAL_MINS", &cfg.Monitor.IntervalMins)
	envInt("PROFILEWATCH_WORKERS", &cfg.Monitor.Workers)
	if v := os.Getenv("PROFILEWATCH_PRESENCE_ENABLED"); v != "" {
		cfg.Presence.Enabled = v == "true" || v == "1"
	}
	envInt("PROFILEWATCH_PRESENCE_DURATION_SECS", &cfg.Presence.DurationSecs)
	envInt("PROFILEWATCH_PRESENCE_FREQUENCY_SECS", &cfg.Presence.FrequencySecs)
	if v := os.Getenv("PROFILEWATCH_NOTIFY_JID"); v != "" {
		cfg.Notify.JID = v
	}
	if v := os.Getenv("PROFILEWATCH_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	if c.Monitor.IntervalMins <= 0 {
		return fmt.Errorf("monitor.interval_mins must be positive, got %d", c.Monitor.IntervalMins)
	}
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be positive, got %d", c.Monitor.Workers)
	}
	if c.Presence.Enabled {
		if c.Presence.FrequencySecs <= 0 {
			return fmt.Errorf("presence.frequency_secs must be positive, got %d", c.Presence.FrequencySecs)
		}
		if c.Presence.DurationSecs < 0 {
			return fmt.Errorf("presence.duration_secs must not be negative, got %d", c.Presence.DurationSecs)
		}
	}
	return nil
}

// DatabasePath is the SQLite file inside the store directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorePath, "profilewatch.db")
}

// EnsureStorePath creates the store directory if it doesn't exist.
func (c *Config) EnsureStorePath() error {
	return os.MkdirAll(c.StorePath, 0755)
}
