// Package config provides configuration parsing for imgsplit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/imgsplit/pkg/blockio"
	"gitlab.com/tinyland/lab/imgsplit/pkg/segment"
)

// ErrInvalidConfig indicates a configuration that cannot drive a run.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the imgsplit configuration. Command-line flags that
// are set explicitly take precedence over these values.
type Config struct {
	// BlockSize in bytes for reading and classifying the image
	BlockSize int `yaml:"block_size"`

	// MinSkip is the number of consecutive zero blocks that triggers a skip
	MinSkip int `yaml:"min_skip"`

	// OutDir is where segment files are created (must already exist)
	OutDir string `yaml:"out_dir"`

	// LogFile path for run logs (empty logs to stderr only)
	LogFile string `yaml:"log_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BlockSize: blockio.DefaultBlockSize,
		MinSkip:   segment.DefaultMinSkip,
		OutDir:    ".",
	}
}

// LoadConfig loads configuration from a YAML file, merging with defaults.
// A missing file is not an error; defaults are returned.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves configuration to a YAML file.
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports whether the configuration can drive a run.
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block_size must be positive, got %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.MinSkip < 0 {
		return fmt.Errorf("%w: min_skip must not be negative, got %d", ErrInvalidConfig, c.MinSkip)
	}
	if c.OutDir == "" {
		return fmt.Errorf("%w: out_dir must not be empty", ErrInvalidConfig)
	}
	return nil
}
