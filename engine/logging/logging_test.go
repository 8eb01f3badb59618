package logging

import (
	"bytes"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-imaging/engine/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, slog.LevelInfo), "mesh_cache")
	l.Debug("hidden")
	l.Info("loaded", "url", "a.vtp")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "component=mesh_cache")
	assert.Contains(t, buf.String(), "url=a.vtp")
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.log")
	l, closer, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	l.Info("volume ready", "version", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "volume ready")
	assert.Contains(t, string(data), "version=3")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
