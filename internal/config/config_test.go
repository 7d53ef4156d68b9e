package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "structured", cfg.Routing.Topology)
	assert.Equal(t, 20, cfg.Routing.K)
	assert.Equal(t, 3, cfg.Routing.Alpha)
	assert.Equal(t, 4096, cfg.Routing.SeenSetCapacity)
	assert.Equal(t, 10, cfg.Routing.BroadcastTTL)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
	assert.Equal(t, 100, cfg.Engine.SnapshotInterval)
	assert.False(t, cfg.Engine.HasRNGSeed)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOPOLOGY", "supernode")
	t.Setenv("BUCKET_K", "8")
	t.Setenv("RNG_SEED", "1234")
	t.Setenv("WORKER_SHUTDOWN_GRACE_MS", "250")

	cfg := Load()
	assert.Equal(t, "supernode", cfg.Routing.Topology)
	assert.Equal(t, 8, cfg.Routing.K)
	assert.True(t, cfg.Engine.HasRNGSeed)
	assert.Equal(t, int64(1234), cfg.Engine.RNGSeed)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.ShutdownGrace)
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  topology: flat
  broadcast_ttl: 4
worker:
  pool_size: 2
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "flat", cfg.Routing.Topology)
	assert.Equal(t, 4, cfg.Routing.BroadcastTTL)
	assert.Equal(t, 2, cfg.Worker.PoolSize)
	// Untouched keys keep their environment defaults.
	assert.Equal(t, 20, cfg.Routing.K)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("/nonexistent/config.yaml")
	require.Error(t, err)
}
