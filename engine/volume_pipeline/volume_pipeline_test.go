package volume_pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/loader"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume"
	"github.com/Carmen-Shannon/oxy-imaging/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	liverURL  = "https://assets/case-a/segmentations/liver.stl"
	tumorURL  = "https://assets/case-a/segmentations/tumor.stl"
	vesselURL = "https://assets/case-a/segmentations/vessels.stl"
)

type harness struct {
	fetcher  *fixture.Fetcher
	sched    scheduler.Scheduler
	cache    loader.MeshCache
	pipeline VolumePipeline
}

func newHarness(t *testing.T, options ...loader.MeshCacheBuilderOption) *harness {
	t.Helper()
	h := &harness{fetcher: fixture.NewFetcher()}
	h.sched = scheduler.NewScheduler(scheduler.WithWorkers(2), scheduler.WithLogger(logging.Discard()))
	h.cache = loader.NewMeshCache(h.fetcher, append(options, loader.WithLogger(logging.Discard()))...)
	h.pipeline = NewVolumePipeline(h.cache, h.sched,
		WithBackend(renderer.BackendTypeHeadless),
		WithLogger(logging.Discard()),
	)
	require.NoError(t, h.pipeline.Mount(renderer.FixedSize{W: 16, H: 16}))
	t.Cleanup(func() {
		h.pipeline.Unmount()
		h.sched.Close()
	})
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Flush(ctx))
}

func structure(id, url string) model.Structure {
	return model.Structure{ID: id, Name: id, Color: "#f94144", MeshURL: url}
}

func TestVersionChangeBindsAndFramesVolume(t *testing.T) {
	h := newHarness(t)
	vol := fixture.Volume(model.Extent{0, 9, 0, 9, 0, 9}, 0)
	h.pipeline.OnVersionChanged(volume.Handle{Volume: vol, Version: 1, State: volume.StateReady})

	va, ok := h.pipeline.Renderer().Actor(volumeActorID).(renderer.VolumeActor)
	require.True(t, ok)
	assert.Same(t, vol, va.Input())
	assert.True(t, va.Visible())
	assert.Equal(t, [3]float32{4.5, 4.5, 4.5}, h.pipeline.Camera().FocalPoint())

	h.pipeline.SetShowVolume(false)
	assert.False(t, va.Visible())
	h.pipeline.SetShowVolume(true)

	h.pipeline.OnVersionChanged(volume.Handle{Version: 2, State: volume.StateFailed})
	assert.False(t, va.Visible())
	assert.False(t, va.HasInput())
	require.NoError(t, h.pipeline.Render())
}

func TestFirstVolumeFramesCameraOnItsBounds(t *testing.T) {
	h := newHarness(t)
	vol := fixture.Volume(model.Extent{0, 99, 0, 99, 0, 99}, 0)

	h.pipeline.OnVersionChanged(volume.Handle{Volume: vol, Version: 1, State: volume.StateReady})
	assert.Equal(t, [3]float32{49.5, 49.5, 49.5}, h.pipeline.Camera().FocalPoint())

	// remounting with the volume already bound frames it the same way
	h.pipeline.Unmount()
	require.NoError(t, h.pipeline.Mount(renderer.FixedSize{W: 16, H: 16}))
	assert.Equal(t, [3]float32{49.5, 49.5, 49.5}, h.pipeline.Camera().FocalPoint())
}

func TestSharedMeshURLFetchesOnce(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(liverURL, fixture.STL(fixture.Triangle(0))).Delay(liverURL, 20*time.Millisecond)

	h.pipeline.SetStructures([]model.Structure{
		structure("liver", liverURL),
		structure("liver-copy", liverURL),
	}, map[string]bool{"liver-copy": false})
	assert.Nil(t, h.pipeline.StructureActor("liver"))
	h.flush(t)

	assert.Equal(t, 1, h.fetcher.Calls(liverURL))
	liver := h.pipeline.StructureActor("liver")
	copyActor := h.pipeline.StructureActor("liver-copy")
	require.NotNil(t, liver)
	require.NotNil(t, copyActor)
	assert.True(t, liver.Visible())
	assert.False(t, copyActor.Visible())
	assert.Equal(t, renderer.DefaultMeshOpacity, liver.Opacity())
	assert.InDelta(t, 0xf9/255.0, liver.Color()[0], 1e-6)
	assert.Equal(t, 0, h.pipeline.PendingMeshes())
}

func TestSupersededMeshResultIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(liverURL, fixture.STL(fixture.Triangle(0))).Delay(liverURL, 50*time.Millisecond)

	h.pipeline.SetStructures([]model.Structure{structure("liver", liverURL)}, nil)
	h.pipeline.SetStructures(nil, nil)
	h.flush(t)

	assert.Nil(t, h.pipeline.StructureActor("liver"))
	assert.Len(t, h.pipeline.Renderer().Actors(), 1)
}

func TestCachedMeshSwapsGeometryInPlace(t *testing.T) {
	first := fixture.Triangle(0)
	second := fixture.Triangle(3)
	h := newHarness(t, loader.WithMesh(liverURL, first), loader.WithMesh(tumorURL, second))

	h.pipeline.SetStructures([]model.Structure{structure("liver", liverURL)}, nil)
	actor := h.pipeline.StructureActor("liver")
	require.NotNil(t, actor)
	assert.Same(t, first, actor.Geometry())

	h.pipeline.SetStructures([]model.Structure{structure("liver", tumorURL)}, nil)
	assert.Same(t, actor, h.pipeline.StructureActor("liver"))
	assert.Same(t, second, actor.Geometry())
	_, cached := h.cache.Peek(liverURL)
	assert.False(t, cached)
	assert.Zero(t, h.fetcher.Total())
}

func TestStructureWithoutMeshIsNotFetched(t *testing.T) {
	h := newHarness(t)
	h.pipeline.SetStructures([]model.Structure{{ID: "notes", Name: "Notes"}}, nil)
	h.flush(t)
	assert.Nil(t, h.pipeline.StructureActor("notes"))
	assert.Zero(t, h.fetcher.Total())
}

func TestMeshFailureIsPerStructure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(liverURL, fixture.STL(fixture.Triangle(0)))
	h.fetcher.Fail(vesselURL, errors.New("connection reset"))

	h.pipeline.SetStructures([]model.Structure{
		structure("liver", liverURL),
		structure("vessels", vesselURL),
	}, nil)
	h.flush(t)

	assert.NotNil(t, h.pipeline.StructureActor("liver"))
	assert.Nil(t, h.pipeline.StructureActor("vessels"))
	assert.Error(t, h.pipeline.StructureError("vessels"))
	assert.NoError(t, h.pipeline.StructureError("liver"))

	// reselecting retries the failed mesh
	h.fetcher.Serve(vesselURL, fixture.STL(fixture.Triangle(1)))
	h.pipeline.SetStructures([]model.Structure{
		structure("liver", liverURL),
		structure("vessels", vesselURL),
	}, nil)
	h.flush(t)
	assert.NotNil(t, h.pipeline.StructureActor("vessels"))
	assert.Equal(t, 2, h.fetcher.Calls(vesselURL))
}

func TestStructuresFramedWithoutVolume(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(liverURL, fixture.STL(fixture.Triangle(0)))
	h.pipeline.SetStructures([]model.Structure{structure("liver", liverURL)}, nil)
	h.flush(t)

	fp := h.pipeline.Camera().FocalPoint()
	assert.InDelta(t, 0.5, fp[0], 1e-5)
	assert.InDelta(t, 0.5, fp[1], 1e-5)
}

func TestVisibilityToggleIsIsolated(t *testing.T) {
	h := newHarness(t, loader.WithMesh(liverURL, fixture.Triangle(0)), loader.WithMesh(tumorURL, fixture.Triangle(1)))
	h.pipeline.OnVersionChanged(volume.Handle{Volume: fixture.Volume(model.Extent{0, 3, 0, 3, 0, 3}, 0), Version: 1})
	h.pipeline.SetStructures([]model.Structure{structure("liver", liverURL), structure("tumor", tumorURL)}, nil)

	h.pipeline.SetVisibility(map[string]bool{"tumor": false})
	assert.True(t, h.pipeline.StructureActor("liver").Visible())
	assert.False(t, h.pipeline.StructureActor("tumor").Visible())
	assert.True(t, h.pipeline.Renderer().Actor(volumeActorID).Visible())
}

func TestUnmountReleasesEverything(t *testing.T) {
	h := newHarness(t, loader.WithMesh(liverURL, fixture.Triangle(0)))
	h.pipeline.OnVersionChanged(volume.Handle{Volume: fixture.Volume(model.Extent{0, 3, 0, 3, 0, 3}, 0), Version: 1})
	h.pipeline.SetStructures([]model.Structure{structure("liver", liverURL)}, nil)

	r := h.pipeline.Renderer()
	assert.Equal(t, 2, r.LiveResources())
	assert.ErrorIs(t, h.pipeline.Mount(renderer.FixedSize{W: 4, H: 4}), ErrAlreadyMounted)

	h.pipeline.Unmount()
	assert.True(t, r.Released())
	assert.Equal(t, 0, r.LiveResources())
	assert.False(t, h.pipeline.Mounted())
	assert.ErrorIs(t, h.pipeline.Render(), ErrNotMounted)

	// remounting rebuilds the scene from the retained state
	require.NoError(t, h.pipeline.Mount(renderer.FixedSize{W: 4, H: 4}))
	assert.NotNil(t, h.pipeline.StructureActor("liver"))
	assert.Equal(t, 2, h.pipeline.Renderer().LiveResources())
}

func TestThemeSetsBackground(t *testing.T) {
	h := newHarness(t)
	h.pipeline.SetTheme(ThemeDark)
	assert.Equal(t, ThemeDark.Background(), h.pipeline.Renderer().Background())
	assert.Equal(t, ThemeLight, ThemeDark.Toggle())

	theme, err := ParseTheme("DARK")
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)
	_, err = ParseTheme("sepia")
	assert.Error(t, err)
}

func TestTransportErrorSurfacesAsStructureError(t *testing.T) {
	h := newHarness(t)
	h.pipeline.SetStructures([]model.Structure{structure("tumor", tumorURL)}, nil)
	h.flush(t)

	var te *fetcher.TransportError
	require.ErrorAs(t, h.pipeline.StructureError("tumor"), &te)
	assert.Equal(t, 404, te.StatusCode)
}
