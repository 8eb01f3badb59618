package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/catalog"
	"github.com/Carmen-Shannon/oxy-imaging/engine/config"
	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const casesYAML = `cases:
  - id: case-a
    label: Case A
    volume:
      url: ct.vti
    structures:
      - id: liver
        name: Liver
        mesh_url: liver.stl
  - id: case-b
    label: Case B
`

// writeWorkspace lays out a config, a static catalog and its assets under a temp dir.
func writeWorkspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ct.vti"),
		fixture.VTI(model.Extent{0, 3, 0, 3, 0, 3}, [3]float32{1, 1, 1}, 0), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "liver.stl"), fixture.STL(fixture.Triangle(0)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cases.yaml"), []byte(casesYAML), 0o644))

	configPath = filepath.Join(dir, "viewer.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`renderer:
  backend: headless
  width: 16
  height: 16
catalog:
  source: static
  path: %s
assets:
  base_url: %s
log:
  level: error
`, filepath.Join(dir, "cases.yaml"), dir)), 0o644))
	return dir, configPath
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestListCases(t *testing.T) {
	_, configPath := writeWorkspace(t)
	var out bytes.Buffer
	require.NoError(t, run(testContext(t), options{ConfigPath: configPath, List: true}, &out))
	assert.Contains(t, out.String(), "case-a")
	assert.Contains(t, out.String(), "Case B")
}

func TestHeadlessSliceCaptureAndExport(t *testing.T) {
	dir, configPath := writeWorkspace(t)
	capture := filepath.Join(dir, "slice.png")
	exportDir := filepath.Join(dir, "exports")

	var out bytes.Buffer
	err := run(testContext(t), options{
		ConfigPath: configPath,
		View:       "2d",
		Axis:       "k",
		Index:      2,
		Headless:   true,
		Out:        capture,
		Export:     "liver",
		ExportDir:  exportDir,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "case=case-a view=2d axis=Axial index=2 volume=ready")

	f, err := os.Open(capture)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	data, err := os.ReadFile(filepath.Join(exportDir, "liver.stl"))
	require.NoError(t, err)
	mesh, err := decoder.DecodeMesh("stl", data)
	require.NoError(t, err)
	assert.Equal(t, 1, mesh.TriangleCount())
}

func TestHeadless3DWithoutVolumeLoad(t *testing.T) {
	_, configPath := writeWorkspace(t)
	var out bytes.Buffer
	err := run(testContext(t), options{ConfigPath: configPath, CaseID: "case-b", View: "3d", Axis: "k", Index: -1, Headless: true}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "case=case-b view=3d")
	assert.Contains(t, out.String(), "volume=idle")
}

func TestUnknownCase(t *testing.T) {
	_, configPath := writeWorkspace(t)
	err := run(testContext(t), options{ConfigPath: configPath, CaseID: "missing", View: "3d", Axis: "k", Headless: true}, &bytes.Buffer{})
	assert.ErrorIs(t, err, catalog.ErrCaseNotFound)
}

func TestPickCase(t *testing.T) {
	_, err := pickCase(nil, "")
	assert.ErrorIs(t, err, errNoCases)

	c, err := pickCase([]catalog.Case{{ID: "a"}, {ID: "b"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ID)
}

func TestNewLightRejectsUnknownType(t *testing.T) {
	cfg := config.DefaultConfig().Light
	_, err := newLight(cfg)
	require.NoError(t, err)

	cfg.Type = "spot"
	_, err = newLight(cfg)
	assert.Error(t, err)
}
