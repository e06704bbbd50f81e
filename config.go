package webdog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that accepts Go duration strings ("60s",
// "5m") in YAML. yaml.v3 only decodes a bare time.Duration field from
// an integer node (nanoseconds), so a human-written "check_interval:
// 60s" would otherwise fail to parse.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or a bare integer of
// nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is webdog's top-level service configuration, loaded from YAML.
// Grounded on domwatch/internal/config.Config's shape (LoadFile +
// applyDefaults run after unmarshal).
type Config struct {
	StorePath     string       `yaml:"store_path"`
	ExportDir     string       `yaml:"export_dir"`
	CheckInterval Duration     `yaml:"check_interval"`
	CleanupEvery  Duration     `yaml:"cleanup_every"`
	ExportMaxAge  Duration     `yaml:"export_max_age"`
	Sinks         []SinkConfig `yaml:"sinks"`
}

// SinkConfig defines one outbound alert backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StorePath == "" {
		c.StorePath = "./db.json"
	}
	if c.ExportDir == "" {
		c.ExportDir = "./exports"
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = Duration(60 * time.Second)
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = Duration(time.Hour)
	}
	if c.ExportMaxAge <= 0 {
		c.ExportMaxAge = Duration(60 * time.Minute)
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// DefaultConfig returns webdog's baseline service configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
