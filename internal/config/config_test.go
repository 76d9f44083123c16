package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(secretFile, []byte("from-file\n"), 0o600))

	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", secretFile)
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/cf.db")
	t.Setenv("WORKFLOW_ASYNC", "true")
	t.Setenv("WORKFLOW_RECONCILE_INTERVAL", "90s")
	t.Setenv("BROADCAST_RELAY", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/cf.db", cfg.Store.SQLitePath)
	assert.True(t, cfg.Workflow.Async)
	assert.Equal(t, 90*time.Second, cfg.Workflow.ReconcileInterval)
	assert.Equal(t, 12*time.Hour, cfg.Workflow.StaleAfter)
	assert.Equal(t, "redis", cfg.Broadcast.Relay)
	assert.Equal(t, 1024, cfg.Cache.StatusSize)
	assert.Equal(t, 120, cfg.RateLimit.MutationsPerMin)
}
