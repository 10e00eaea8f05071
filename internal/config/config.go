// Package config handles configuration loading, validation, and defaults
// for proctord.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the complete proctord configuration.
type Config struct {
	// Session configuration for the violation policy.
	Session SessionConfig `toml:"session" json:"session" yaml:"session"`

	// Vision configuration for the periodic camera checks.
	Vision VisionConfig `toml:"vision" json:"vision" yaml:"vision"`

	// Device configuration for duplicate-session coordination.
	Device DeviceConfig `toml:"device" json:"device" yaml:"device"`

	// Storage configuration for the shared durable store.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Spool configuration for daemon-mode frame ingestion.
	Spool SpoolConfig `toml:"spool" json:"spool" yaml:"spool"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// SessionConfig holds violation-policy settings.
type SessionConfig struct {
	// MaxTabSwitches is the tab-switch budget before the synthetic
	// critical violation fires.
	MaxTabSwitches int `toml:"max_tab_switches" json:"max_tab_switches" yaml:"max_tab_switches"`

	// RequireFullscreen requests fullscreen from the host at start.
	RequireFullscreen bool `toml:"require_fullscreen" json:"require_fullscreen" yaml:"require_fullscreen"`
}

// VisionConfig holds camera-check scheduling.
type VisionConfig struct {
	// FaceIntervalSec is the face-presence check interval in seconds.
	FaceIntervalSec int `toml:"face_interval_sec" json:"face_interval_sec" yaml:"face_interval_sec"`

	// GazeIntervalSec is the gaze-drift check interval in seconds.
	GazeIntervalSec int `toml:"gaze_interval_sec" json:"gaze_interval_sec" yaml:"gaze_interval_sec"`
}

// DeviceConfig holds duplicate-session liveness windows.
type DeviceConfig struct {
	// HeartbeatSec is the registry heartbeat interval in seconds.
	HeartbeatSec int `toml:"heartbeat_sec" json:"heartbeat_sec" yaml:"heartbeat_sec"`

	// StaleAfterMin is the registry entry age in minutes before pruning.
	StaleAfterMin int `toml:"stale_after_min" json:"stale_after_min" yaml:"stale_after_min"`
}

// StorageConfig holds durable-store settings.
type StorageConfig struct {
	// Path is the SQLite database file shared by all proctor processes of
	// this installation.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// SpoolConfig holds daemon-mode frame spool settings.
type SpoolConfig struct {
	// Dir is the directory the host capture process drops frames into.
	// Empty disables visual verification in daemon mode.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level" yaml:"level"`
	Format   string `toml:"format" json:"format" yaml:"format"`
	Output   string `toml:"output" json:"output" yaml:"output"`
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxTabSwitches:    3,
			RequireFullscreen: true,
		},
		Vision: VisionConfig{
			FaceIntervalSec: 30,
			GazeIntervalSec: 5,
		},
		Device: DeviceConfig{
			HeartbeatSec:  10,
			StaleAfterMin: 30,
		},
		Storage: StorageConfig{
			Path: defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// defaultStorePath returns the per-user default database location.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "proctord.db"
	}
	return filepath.Join(dir, "proctord", "proctord.db")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.MaxTabSwitches < 1 {
		errs = append(errs, fmt.Errorf("session.max_tab_switches must be at least 1, got %d", c.Session.MaxTabSwitches))
	}
	if c.Vision.FaceIntervalSec < 1 {
		errs = append(errs, fmt.Errorf("vision.face_interval_sec must be positive, got %d", c.Vision.FaceIntervalSec))
	}
	if c.Vision.GazeIntervalSec < 1 {
		errs = append(errs, fmt.Errorf("vision.gaze_interval_sec must be positive, got %d", c.Vision.GazeIntervalSec))
	}
	if c.Device.HeartbeatSec < 1 {
		errs = append(errs, fmt.Errorf("device.heartbeat_sec must be positive, got %d", c.Device.HeartbeatSec))
	}
	if c.Device.StaleAfterMin < 1 {
		errs = append(errs, fmt.Errorf("device.stale_after_min must be positive, got %d", c.Device.StaleAfterMin))
	}
	// Heartbeat must fit inside the stale window or a live device could
	// be pruned.
	if c.Device.HeartbeatSec >= c.Device.StaleAfterMin*60 {
		errs = append(errs, errors.New("device.heartbeat_sec must be smaller than the stale window"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path must not be empty"))
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		errs = append(errs, errors.New("logging.file_path required when logging.output is file"))
	}

	return errors.Join(errs...)
}
