package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, filepath.Join(cfg.DataDir, "meetbrief.db"), cfg.DatabasePath)
	assert.Equal(t, int64(524288000), cfg.MaxUploadSize)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)
	assert.Contains(t, cfg.AllowedExtensions, "mp3")
	assert.False(t, cfg.EmbeddedWorker)
}

func TestLoadCreatesDataDirs(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv("DATA_DIR", dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	for _, dir := range []string{cfg.UploadsDir, cfg.ResultsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("MAX_UPLOAD_SIZE", "1048576")
	t.Setenv("WORKER_EMBEDDED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, int64(1048576), cfg.MaxUploadSize)
	assert.True(t, cfg.EmbeddedWorker)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MAX_UPLOAD_SIZE", "lots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, int64(524288000), cfg.MaxUploadSize)
}
