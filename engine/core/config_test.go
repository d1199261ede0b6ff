package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[application]
name = "Grid"

[renderer]
backend = "headless"
fence_timeout_ms = 250
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Grid", cfg.Application.Name)
	assert.Equal(t, uint32(1280), cfg.Application.Width)
	assert.Equal(t, BackendHeadless, cfg.Renderer.Backend)
	assert.Equal(t, uint32(15), cfg.Renderer.MaxTextures)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.FenceTimeout())
}

func TestFenceTimeoutDefaultsToForever(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, WaitForever, cfg.Renderer.FenceTimeout())
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
[renderer]
backend = "metal"
`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "metal")
}

func TestLoadConfigRejectsZeroTextures(t *testing.T) {
	path := writeConfig(t, `
[renderer]
max_textures = 0
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[renderer]
max_texturez = 0
`)
	_, err := LoadConfig(path)
	var strict *toml.StrictMissingError
	assert.ErrorAs(t, err, &strict)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
