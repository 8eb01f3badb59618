package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Slice, cfg.Slice)
	assert.True(t, cfg.ImagingEnabled)
	assert.Equal(t, float32(1500), cfg.Slice.ColorWindow)
	assert.Equal(t, float32(-500), cfg.Slice.ColorLevel)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
imaging_enabled: false
theme: dark
renderer:
  backend: headless
  width: 640
  height: 480
fetcher:
  revalidate: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.ImagingEnabled)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, "headless", cfg.Renderer.Backend)
	assert.Equal(t, 640, cfg.Renderer.Width)
	assert.True(t, cfg.Fetcher.Revalidate)
	assert.Equal(t, 256, cfg.Fetcher.CacheSizeMB, "unset keys keep defaults")
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
theme = "dark"

[s3]
bucket = "cases"
path_style = true

[log]
max_log_size = 5
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, "cases", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("theme: sepia\n"), 0o644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid theme")

	require.NoError(t, os.WriteFile(path, []byte("renderer: [\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(env(map[string]string{
		"OXY_IMAGING_IMAGING_ENABLED": "false",
		"OXY_IMAGING_S3_BUCKET":       "imaging",
		"OXY_IMAGING_WORKERS":         "2",
		"OXY_IMAGING_ASSET_BASE_URL":  "https://cdn.example.org",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.ImagingEnabled)
	assert.Equal(t, "imaging", cfg.S3.Bucket)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, "https://cdn.example.org", cfg.Assets.BaseURL)

	err = cfg.ApplyEnv(env(map[string]string{"OXY_IMAGING_S3_PATH_STYLE": "maybe"}))
	assert.ErrorContains(t, err, "OXY_IMAGING_S3_PATH_STYLE")
}

func TestSaveConfigRoundTripsBothFormats(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Theme = "dark"
	cfg.Assets.BaseURL = "https://example.org/assets"

	for _, name := range []string{"out.yaml", "nested/out.toml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, SaveConfig(cfg, path))
		loaded, err := LoadConfig(path)
		require.NoError(t, err, name)
		assert.Equal(t, "dark", loaded.Theme, name)
		assert.Equal(t, cfg.Assets.BaseURL, loaded.Assets.BaseURL, name)
	}
}

func TestLightConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "headlight", cfg.Light.Type)
	assert.InDelta(t, 0.3, cfg.Light.Ambient, 1e-6)

	require.NoError(t, cfg.ApplyEnv(env(map[string]string{"OXY_IMAGING_LIGHT_TYPE": "directional"})))
	assert.NoError(t, cfg.Validate())

	cfg.Light.Type = "spot"
	assert.ErrorContains(t, cfg.Validate(), "invalid light type")

	cfg.Light.Type = "headlight"
	cfg.Light.Diffuse = -1
	assert.ErrorContains(t, cfg.Validate(), "invalid light coefficients")
}
