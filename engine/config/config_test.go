package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uint32(1200), cfg.Window.Width)
	assert.True(t, cfg.Renderer.Ssao)
	assert.True(t, cfg.Renderer.Ibl)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	content := `
debug = true

[window]
title = "Test"
width = 640
height = 480

[renderer]
msaa = true
ssao = false

[assets]
model_path = "assets/models/test.obj"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "Test", cfg.Window.Title)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, uint32(480), cfg.Window.Height)
	assert.True(t, cfg.Renderer.Msaa)
	assert.False(t, cfg.Renderer.Ssao)
	assert.Equal(t, "assets/models/test.obj", cfg.Assets.ModelPath)

	// Untouched keys keep their defaults.
	assert.True(t, cfg.Renderer.Ibl)
	assert.Equal(t, "shaders", cfg.Assets.ShaderDir)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window\nwidth=“broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsZeroDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window]\nwidth = 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
