package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies the defaults match the fixed frame layout
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 32, cfg.Geometry.Top)
	assert.Equal(t, 417, cfg.Geometry.Bottom)
	assert.Equal(t, 60, cfg.Geometry.Left)
	assert.Equal(t, 242, cfg.Geometry.BitWidth)
	assert.Equal(t, 2, cfg.Geometry.InsetStart)
	assert.Equal(t, 1, cfg.Geometry.InsetEnd)
	assert.Equal(t, 8, cfg.Geometry.Count)

	assert.Equal(t, "blur", cfg.Pipeline.Variant)
	assert.Equal(t, 3.0, cfg.Pipeline.Sigma)
	assert.Equal(t, "start", cfg.Relay.Handshake)
	assert.Equal(t, "none", cfg.Storage.Driver)
	assert.GreaterOrEqual(t, cfg.Processing.NumCores, 1)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Geometry, cfg.Geometry)
}

// TestSaveAndLoadConfig writes a modified config and reads it back
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bitslicer.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.Variant = "composite"
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = "frames.db"
	cfg.Relay.Protocols = []string{"bitslicer.composite"}
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "composite", loaded.Pipeline.Variant)
	assert.Equal(t, "sqlite", loaded.Storage.Driver)
	assert.Equal(t, []string{"bitslicer.composite"}, loaded.Relay.Protocols)
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("geometry:\n  top: 10\npipeline:\n  sigma: 1.5\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Geometry.Top)
	assert.Equal(t, 417, cfg.Geometry.Bottom)
	assert.Equal(t, 1.5, cfg.Pipeline.Sigma)
	assert.Equal(t, "blur", cfg.Pipeline.Variant)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"variant":    "pipeline:\n  variant: sharpen\n",
		"background": "pipeline:\n  background: green\n",
		"sigma":      "pipeline:\n  sigma: 0\n",
		"driver":     "storage:\n  driver: s3\n",
		"cores":      "processing:\n  numCores: 0\n",
		"yaml":       "geometry: [\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pipeline, cfg.Pipeline)
}
