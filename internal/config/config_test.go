package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	// Required fields have no defaults, provide them via env.
	t.Setenv("BRIDGE_INSTAGRAM_USERNAME", "bridgebot")
	t.Setenv("BRIDGE_INSTAGRAM_PASSWORD", "hunter2")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "123:abc")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	assert.Equal(t, "instabridge", cfg.Database.Name)
	assert.Equal(t, uint64(10), cfg.Database.MaxPoolSize)
	assert.Equal(t, 3, cfg.Database.MaxConnectTry)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.MetadataTTL)
	assert.Equal(t, time.Second, cfg.Redis.DequeueTimeout)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, time.Minute, cfg.Sync.RetryDelay)
	assert.Equal(t, 50, cfg.Instagram.BatchSize)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.True(t, cfg.Security.RequireSignedWebhooks)
	assert.True(t, cfg.Sync.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_INSTAGRAM_USERNAME", "bridgebot")
	t.Setenv("BRIDGE_INSTAGRAM_PASSWORD", "hunter2")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("BRIDGE_LOGGER_LEVEL", "debug")
	t.Setenv("BRIDGE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("BRIDGE_SYNC_INTERVAL", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
}

func TestLoadMissingRequired(t *testing.T) {
	// No credentials anywhere: validation must reject the config.
	t.Setenv("BRIDGE_INSTAGRAM_USERNAME", "")
	t.Setenv("BRIDGE_INSTAGRAM_PASSWORD", "")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadRejectsBadLevel(t *testing.T) {
	t.Setenv("BRIDGE_INSTAGRAM_USERNAME", "bridgebot")
	t.Setenv("BRIDGE_INSTAGRAM_PASSWORD", "hunter2")
	t.Setenv("BRIDGE_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("BRIDGE_LOGGER_LEVEL", "verbose")

	_, err := config.Load()
	require.Error(t, err)
}
