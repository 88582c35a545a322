// Package config handles configuration loading, validation, and the
// atomically-swappable detection snapshot for duckhunt.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Detection holds the hot-path detection parameters.
	Detection Detection `toml:"detection" json:"detection"`

	// Daemon holds process lifecycle configuration.
	Daemon Daemon `toml:"daemon" json:"daemon"`

	// Logging configuration.
	Logging Logging `toml:"logging" json:"logging"`

	// IPC configuration for the control socket.
	IPC IPC `toml:"ipc" json:"ipc"`

	// Journal configuration for the incident journal.
	Journal Journal `toml:"journal" json:"journal"`
}

// Detection holds the detection parameters read on the hot path. A value
// of this struct is an immutable snapshot: the engine always classifies
// one event against one snapshot, and updates swap the whole snapshot.
type Detection struct {
	// ThresholdMs is the rolling-average inter-key interval below which
	// typing is considered injected, in milliseconds.
	ThresholdMs int `toml:"threshold_ms" json:"threshold_ms" validate:"gt=0,lte=1000"`

	// HistorySize is the number of inter-key intervals in the rolling
	// window. The window must be full before the average is meaningful.
	HistorySize int `toml:"history_size" json:"history_size" validate:"gte=2,lte=1000"`

	// BurstKeys is the number of key events within BurstWindowMs that
	// constitutes a burst.
	BurstKeys int `toml:"burst_keys" json:"burst_keys" validate:"gte=2,lte=1000"`

	// BurstWindowMs is the trailing window for burst detection, in
	// milliseconds.
	BurstWindowMs int `toml:"burst_window_ms" json:"burst_window_ms" validate:"gt=0,lte=10000"`

	// AllowAutoType permits software-simulated input (password managers,
	// automation tools). When false, any event flagged as synthetic is
	// escalated straight to an anomaly.
	AllowAutoType bool `toml:"allow_auto_type" json:"allow_auto_type"`
}

// Threshold returns the interval threshold as a duration.
func (d Detection) Threshold() time.Duration {
	return time.Duration(d.ThresholdMs) * time.Millisecond
}

// BurstWindow returns the burst window as a duration.
func (d Detection) BurstWindow() time.Duration {
	return time.Duration(d.BurstWindowMs) * time.Millisecond
}

// Daemon holds process lifecycle configuration.
type Daemon struct {
	// DataDir is the directory for the PID file, state file and socket.
	DataDir string `toml:"data_dir" json:"data_dir"`

	// Enabled determines whether monitoring starts active.
	Enabled bool `toml:"enabled" json:"enabled"`
}

// Logging holds logging configuration as read from the config file.
type Logging struct {
	Level  string `toml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" json:"format" validate:"omitempty,oneof=text json"`
	Output string `toml:"output" json:"output" validate:"omitempty,oneof=stdout stderr file both"`
	File   string `toml:"file" json:"file"`
}

// IPC holds control socket configuration.
type IPC struct {
	// SocketPath overrides the default socket location.
	SocketPath string `toml:"socket_path" json:"socket_path"`
}

// Journal holds incident journal configuration.
type Journal struct {
	// Enabled determines whether anomaly episodes are recorded.
	Enabled bool `toml:"enabled" json:"enabled"`

	// Path is the SQLite database path. Empty means DataDir/incidents.db.
	Path string `toml:"path" json:"path"`

	// MaxRecords caps the journal size; oldest records are pruned beyond it.
	MaxRecords int `toml:"max_records" json:"max_records" validate:"gte=0"`
}

// DefaultDataDir returns the platform-specific daemon data directory.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "duckhunt")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "duckhunt")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			homeDir, _ := os.UserHomeDir()
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataHome, "duckhunt")
	}
}

// DefaultPath returns the platform-specific default config file path.
func DefaultPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(DefaultDataDir(), "duckhunt.toml")
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			homeDir, _ := os.UserHomeDir()
			configHome = filepath.Join(homeDir, ".config")
		}
		return filepath.Join(configHome, "duckhunt", "duckhunt.toml")
	}
}

// Load reads and validates the config file at path. A missing file yields
// the defaults; a malformed or invalid file yields an error so a bad edit
// never silently disables protection.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
