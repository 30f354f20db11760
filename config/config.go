// Package config loads service configuration for the ordering core from a
// YAML file, with working defaults for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10m" or "1h".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full configuration of the ordering core.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Quota    QuotaConfig    `yaml:"quota"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Prompt   PromptConfig   `yaml:"prompt"`
}

// StoreConfig selects and configures the session store driver.
type StoreConfig struct {
	Driver string      `yaml:"driver"` // "memory" or "redis"
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis driver.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// QuotaConfig configures the rate limiter and the session manager's
// quota policy. Both components read the same values.
type QuotaConfig struct {
	Limit         int      `yaml:"limit"`
	IdleThreshold Duration `yaml:"idle_threshold"`
	Cooldown      Duration `yaml:"cooldown"`
	WarningMargin int      `yaml:"warning_margin"`
}

// SupabaseConfig configures the menu source and order archive.
type SupabaseConfig struct {
	URL      string   `yaml:"url"`
	APIKey   string   `yaml:"api_key"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// PromptConfig bounds the history replayed into each completion prompt.
type PromptConfig struct {
	MaxMessages int `yaml:"max_messages"`
	MaxTokens   int `yaml:"max_tokens"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  Duration(24 * time.Hour),
			},
		},
		Quota: QuotaConfig{
			Limit:         30,
			IdleThreshold: Duration(10 * time.Minute),
			Cooldown:      Duration(time.Hour),
			WarningMargin: 5,
		},
		Supabase: SupabaseConfig{
			CacheTTL: Duration(5 * time.Minute),
		},
		Prompt: PromptConfig{
			MaxMessages: 40,
			MaxTokens:   6000,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("redis driver requires an address")
	}
	if c.Quota.Limit <= 0 {
		return fmt.Errorf("quota limit must be positive, got %d", c.Quota.Limit)
	}
	if c.Quota.WarningMargin < 0 || c.Quota.WarningMargin >= c.Quota.Limit {
		return fmt.Errorf("warning margin %d must be in [0, limit)", c.Quota.WarningMargin)
	}
	return nil
}
