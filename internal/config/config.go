// Package config loads the xeda command configuration from YAML. A missing
// file yields Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when --config is not given.
const DefaultPath = "./xeda.yaml"

type Config struct {
	Integration IntegrationConfig `yaml:"integration"`
	Transport   TransportConfig   `yaml:"transport"`
	Log         LogConfig         `yaml:"log"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Moderation  ModerationConfig  `yaml:"moderation"`
	Schema      SchemaConfig      `yaml:"schema"`
	Limits      LimitsConfig      `yaml:"limits"`
}

// IntegrationConfig holds the dispatch gate and the timezone used for
// envelope timestamps.
type IntegrationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

// TransportConfig names a registered transport; Settings are handed to its
// ConfigFromMap unchanged.
type TransportConfig struct {
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type SchedulerConfig struct {
	Spec   string `yaml:"spec"`
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ModerationConfig struct {
	UnpublishImmediately bool `yaml:"unpublish_immediately"`
}

type SchemaConfig struct {
	Validate bool `yaml:"validate"`
}

// LimitsConfig caps outgoing publishes per second. Zero disables the limit.
type LimitsConfig struct {
	PublishRate  float64 `yaml:"publish_rate"`
	PublishBurst int     `yaml:"publish_burst"`
}

func Default() *Config {
	return &Config{
		Integration: IntegrationConfig{Enabled: true, Timezone: "UTC"},
		Transport:   TransportConfig{Kind: "memory"},
		Log:         LogConfig{Level: "info"},
		Scheduler:   SchedulerConfig{Spec: "*/5 * * * *", Driver: "sqlite", DSN: "xeda.db"},
		Schema:      SchemaConfig{Validate: true},
		Limits:      LimitsConfig{PublishBurst: 1},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Transport.Kind == "" {
		return errors.New("transport.kind must be set")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Scheduler.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("scheduler.driver %q is not sqlite or postgres", c.Scheduler.Driver)
	}
	if c.Limits.PublishRate < 0 || c.Limits.PublishBurst < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Location resolves Integration.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Integration.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Integration.Timezone)
	if err != nil {
		return nil, fmt.Errorf("integration.timezone: %w", err)
	}
	return loc, nil
}
