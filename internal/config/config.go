// Package config loads a JunctionConfig from YAML, the way a long-running
// junction-echo-style process picks up its tuning knobs without a rebuild.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JunctionConfig is the on-disk shape of a Junction's tunables. Every field
// has a zero value that Load fills in via DefaultConfig, so a partial YAML
// document (or none at all) still produces a usable config.
type JunctionConfig struct {
	ExoresourceSize  int           `yaml:"exoresource_size"`
	DatagramSlotSize int           `yaml:"datagram_slot_size"`
	CollectTimeout   time.Duration `yaml:"collect_timeout"`
	CPUAffinity      []int         `yaml:"cpu_affinity,omitempty"`
	LogLevel         string        `yaml:"log_level"`
}

// DefaultConfig returns the tunables a new Junction uses absent an
// on-disk override.
func DefaultConfig() *JunctionConfig {
	return &JunctionConfig{
		ExoresourceSize:  64,
		DatagramSlotSize: 1500,
		CollectTimeout:   9 * time.Second,
		LogLevel:         "info",
	}
}

// Load reads a YAML config from path, overlaying it onto DefaultConfig so
// missing fields keep their default.
func Load(path string) (*JunctionConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a config whose values would make a Junction unusable.
func (c *JunctionConfig) Validate() error {
	if c.ExoresourceSize <= 0 {
		return fmt.Errorf("config: exoresource_size must be positive, got %d", c.ExoresourceSize)
	}
	if c.DatagramSlotSize <= 0 {
		return fmt.Errorf("config: datagram_slot_size must be positive, got %d", c.DatagramSlotSize)
	}
	if c.CollectTimeout <= 0 {
		return fmt.Errorf("config: collect_timeout must be positive, got %s", c.CollectTimeout)
	}
	return nil
}
