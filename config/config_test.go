package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL.Std())

	assert.Equal(t, 30, cfg.Quota.Limit)
	assert.Equal(t, 10*time.Minute, cfg.Quota.IdleThreshold.Std())
	assert.Equal(t, time.Hour, cfg.Quota.Cooldown.Std())
	assert.Equal(t, 5, cfg.Quota.WarningMargin)

	assert.Equal(t, 5*time.Minute, cfg.Supabase.CacheTTL.Std())
	assert.Equal(t, 40, cfg.Prompt.MaxMessages)

	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: redis
  redis:
    addr: redis.internal:6379
    ttl: 12h
quota:
  limit: 50
  warning_margin: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 12*time.Hour, cfg.Store.Redis.TTL.Std())
	assert.Equal(t, 50, cfg.Quota.Limit)
	assert.Equal(t, 10, cfg.Quota.WarningMargin)

	// Untouched sections keep their defaults.
	assert.Equal(t, time.Hour, cfg.Quota.Cooldown.Std())
	assert.Equal(t, 40, cfg.Prompt.MaxMessages)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Store.Driver = "redis"
			c.Store.Redis.Addr = ""
		}, wantErr: true},
		{name: "zero limit", mutate: func(c *Config) { c.Quota.Limit = 0 }, wantErr: true},
		{name: "margin at limit", mutate: func(c *Config) {
			c.Quota.Limit = 5
			c.Quota.WarningMargin = 5
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
