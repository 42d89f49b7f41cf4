// Package config provides configuration loading and management for bitslicer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Geometry describes where the eight bit slices sit in a frame
	Geometry struct {
		// Top is the first row of the bounding box
		Top int `yaml:"top"`

		// Bottom is the row just past the bounding box
		Bottom int `yaml:"bottom"`

		// Left is the first column of the bounding box
		Left int `yaml:"left"`

		// BitWidth is the width in pixels of each slice column
		BitWidth int `yaml:"bitWidth"`

		// InsetStart trims the top and left edge of every slice
		InsetStart int `yaml:"insetStart"`

		// InsetEnd trims the bottom and right edge of every slice
		InsetEnd int `yaml:"insetEnd"`

		// Count is the number of slices, references included
		Count int `yaml:"count"`
	} `yaml:"geometry"`

	// Pre-processing parameters
	Pipeline struct {
		// Variant selects the step list, "blur" or "composite"
		Variant string `yaml:"variant"`

		// Sigma is the standard deviation of the Gaussian blur
		Sigma float64 `yaml:"sigma"`

		// Truncate bounds the blur kernel at Truncate*Sigma
		Truncate float64 `yaml:"truncate"`

		// Background is the color transparent pixels are composited onto
		Background string `yaml:"background"`
	} `yaml:"pipeline"`

	// Relay connection parameters
	Relay struct {
		URL       string   `yaml:"url"`
		Origin    string   `yaml:"origin"`
		Handshake string   `yaml:"handshake"`
		Protocols []string `yaml:"protocols"`
	} `yaml:"relay"`

	// Storage of received frames
	Storage struct {
		// Driver is one of "none", "dir" or "sqlite"
		Driver string `yaml:"driver"`

		// Path is a directory for "dir" and a database file for "sqlite"
		Path string `yaml:"path"`

		// Compress enables zstd compression of stored frames (sqlite only)
		Compress bool `yaml:"compress"`
	} `yaml:"storage"`

	// Debug artifact dumping
	Debug struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"debug"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many files are decoded concurrently in batch mode
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default frame layout
	cfg.Geometry.Top = 32
	cfg.Geometry.Bottom = 417
	cfg.Geometry.Left = 60
	cfg.Geometry.BitWidth = 242
	cfg.Geometry.InsetStart = 2
	cfg.Geometry.InsetEnd = 1
	cfg.Geometry.Count = 8

	// Set default pre-processing parameters
	cfg.Pipeline.Variant = "blur"
	cfg.Pipeline.Sigma = 3.0
	cfg.Pipeline.Truncate = 4.0
	cfg.Pipeline.Background = "white"

	// Set default relay parameters
	cfg.Relay.Origin = "http://localhost/"
	cfg.Relay.Handshake = "start"

	// Set default storage and debug parameters
	cfg.Storage.Driver = "none"
	cfg.Storage.Path = "imgs"
	cfg.Storage.Compress = true

	cfg.Debug.Enabled = false
	cfg.Debug.Dir = "chunks"

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	return cfg
}

// Validate checks values that cannot be caught by the YAML decoder
func (c *Config) Validate() error {
	switch c.Pipeline.Variant {
	case "blur", "composite":
	default:
		return fmt.Errorf("unknown pipeline variant %q", c.Pipeline.Variant)
	}

	switch c.Pipeline.Background {
	case "white", "black":
	default:
		return fmt.Errorf("unknown background %q", c.Pipeline.Background)
	}

	if c.Pipeline.Variant == "blur" && c.Pipeline.Sigma <= 0 {
		return errors.New("blur sigma must be positive")
	}

	// Storage needs a known driver and, unless disabled, a location
	switch c.Storage.Driver {
	case "none", "dir", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Storage.Driver != "none" && c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	if c.Processing.NumCores < 1 {
		return errors.New("numCores must be at least 1")
	}

	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Reject values the decoder cannot work with
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
