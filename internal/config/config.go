package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/paths"
)

// Config represents the gopuppet configuration file (gopuppet.json)
type Config struct {
	Session SessionConfig `json:"session"`
	Wait    WaitConfig    `json:"wait"`
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`
}

// SessionConfig selects and configures the remote browser connection
type SessionConfig struct {
	ControlURL string `json:"controlURL"` // DevTools endpoint of a running browser (empty = launch one)
	Bin        string `json:"bin"`        // Browser binary for launching (empty = launcher default)
	Headless   bool   `json:"headless"`   // Run a launched browser headless
	NoSandbox  bool   `json:"noSandbox"`  // Disable sandbox (needed for Docker/root)
	Stealth    bool   `json:"stealth"`    // Open new tabs as stealth pages
	Device     string `json:"device"`     // Device emulation: "clear", "laptop", "iphone-x", ...
}

// WaitConfig bounds the poll loops that wait for the remote UI to settle
type WaitConfig struct {
	Timeout  string `json:"timeout"`  // e.g. "5s"
	Interval string `json:"interval"` // e.g. "100ms"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `json:"level"` // trace, debug, info, warn, error
}

// MetricsConfig holds metrics persistence settings
type MetricsConfig struct {
	DB string `json:"db"` // SQLite file for metric history (empty = in-memory only)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ControlURL: "",
			Headless:   true,
			Stealth:    false,
			Device:     "clear",
		},
		Wait: WaitConfig{
			Timeout:  "5s",
			Interval: "100ms",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the configuration from path. An empty path resolves through
// paths.ConfigPath; if no file exists there the defaults are returned.
// Values in the file override defaults field by field.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		resolved, err := paths.ConfigPath()
		if err != nil {
			return nil, err
		}
		if resolved == "" {
			logging.L_debug("config: no config file, using defaults")
			return cfg, nil
		}
		path = resolved
	}

	path, err := paths.ExpandTilde(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	logging.L_debug("config: loaded", "path", path)
	return cfg, nil
}

// ResolveTimeout returns the wait timeout as a Duration
func (c *WaitConfig) ResolveTimeout() time.Duration {
	return parseDuration(c.Timeout, 5*time.Second)
}

// ResolveInterval returns the poll interval as a Duration
func (c *WaitConfig) ResolveInterval() time.Duration {
	return parseDuration(c.Interval, 100*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		logging.L_warn("config: invalid duration, using default", "value", s, "default", fallback)
		return fallback
	}
	return d
}
