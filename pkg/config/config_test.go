package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.InstanceLease)
	assert.Equal(t, 20, cfg.WorkerPoolSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("TOYGRES_PORT", "9090")
	t.Setenv("TOYGRES_WORKER_POOL_SIZE", "16")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("TOYGRES_INSTANCE_LEASE_TIMEOUT", "not-a-duration")
	defer os.Unsetenv("TOYGRES_INSTANCE_LEASE_TIMEOUT")

	_, err := Load()
	assert.Error(t, err)
}
