package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRedisAddr is used when warren.yml omits the redis address.
const DefaultRedisAddr = "localhost:6379"

// DefaultToolTimeout bounds state machine tool invocations when warren.yml
// does not set one.
const DefaultToolTimeout = 30 * time.Second

// Config represents the top-level warren.yml configuration.
type Config struct {
	Version  string       `yaml:"version"`
	Instance string       `yaml:"instance"`
	Redis    *RedisConfig `yaml:"redis,omitempty"`

	// ToolTimeout is a duration string ("30s", "2m") bounding tool
	// invocations; empty selects the default.
	ToolTimeout string `yaml:"tool_timeout,omitempty"`

	// Seeds lists the YAML bundles applied on startup, in order.
	Seeds []string `yaml:"seeds,omitempty"`
}

// RedisConfig specifies the collaborative store substrate connection.
type RedisConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}
	if strings.ContainsAny(c.Instance, " \t\n:") {
		return fmt.Errorf("invalid instance name %q: no whitespace or colons", c.Instance)
	}

	if c.ToolTimeout != "" {
		d, err := time.ParseDuration(c.ToolTimeout)
		if err != nil {
			return fmt.Errorf("invalid tool_timeout %q: %w", c.ToolTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("tool_timeout must be positive, got %q", c.ToolTimeout)
		}
	}

	for i, path := range c.Seeds {
		if path == "" {
			return fmt.Errorf("seeds entry %d is empty", i)
		}
	}
	return nil
}

// RedisAddr returns the configured redis address or the default.
func (c *Config) RedisAddr() string {
	if c.Redis != nil && c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	return DefaultRedisAddr
}

// ToolTimeoutDuration returns the parsed tool timeout or the default. The
// config must have been validated.
func (c *Config) ToolTimeoutDuration() time.Duration {
	if c.ToolTimeout == "" {
		return DefaultToolTimeout
	}
	d, err := time.ParseDuration(c.ToolTimeout)
	if err != nil {
		return DefaultToolTimeout
	}
	return d
}

// Load reads and validates warren.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
