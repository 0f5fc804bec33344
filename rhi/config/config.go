// Package config loads the Device's configuration options (spec §6)
// from TOML, the same library the teacher engine uses for its asset
// configuration files.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// PresentMode is a present-mode hint carried in the configuration.
// Swapchain creation does not read it: it picks MAILBOX when the
// surface supports it and FIFO otherwise.
type PresentMode string

const (
	PresentModeFIFO      PresentMode = "fifo"
	PresentModeMailbox   PresentMode = "mailbox"
	PresentModeImmediate PresentMode = "immediate"
)

// DeviceConfig is the full set of configuration options consumed at
// device creation.
type DeviceConfig struct {
	EnableValidation     bool        `toml:"enable_validation"`
	ApplicationName      string      `toml:"application_name"`
	ApplicationVersion   uint32      `toml:"application_version"`
	WindowWidth          uint32      `toml:"window_width"`
	WindowHeight         uint32      `toml:"window_height"`
	PreferredPresentMode PresentMode `toml:"preferred_present_mode"`

	// PipelineCachePath is loaded and saved with the rest of the
	// configuration; the device does not read it, and no pipeline
	// cache blob is persisted at shutdown or reloaded at startup.
	PipelineCachePath string `toml:"pipeline_cache_path"`

	// ShaderWatchDir, when non-empty, enables the fsnotify-backed
	// shader hot reloader over compiled .spv output.
	ShaderWatchDir string `toml:"shader_watch_dir"`
}

// Default returns the spec's documented defaults.
func Default() DeviceConfig {
	return DeviceConfig{
		EnableValidation:     false,
		ApplicationName:      "rhi",
		ApplicationVersion:   1,
		WindowWidth:          1280,
		WindowHeight:         720,
		PreferredPresentMode: PresentModeFIFO,
	}
}

// Load reads a TOML configuration file, starting from Default() so
// unset fields keep their defaults.
func Load(path string) (DeviceConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration back out in TOML form.
func Save(path string, cfg DeviceConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
