package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8790", cfg.Server.ListenAddr())
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5*time.Second, cfg.Sync.BadgeInterval)
	assert.Equal(t, 2*time.Second, cfg.Sync.IdleResetDelay)
	assert.Equal(t, 30*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIELDSYNC_PORT", "9000")
	t.Setenv("FIELDSYNC_DATA_DIR", "/var/lib/fieldsync")
	t.Setenv("FIELDSYNC_SYNC_INTERVAL", "1m")
	t.Setenv("FIELDSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/fieldsync", cfg.Store.DataDir)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("FIELDSYNC_PORT", "70000")

	_, err := Load()
	assert.Error(t, err)
}
