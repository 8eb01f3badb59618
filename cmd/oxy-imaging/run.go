package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine"
	"github.com/Carmen-Shannon/oxy-imaging/engine/catalog"
	"github.com/Carmen-Shannon/oxy-imaging/engine/config"
	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/loader"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice_pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume_pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// errNoCases is returned when the catalog lists nothing to open.
var errNoCases = errors.New("catalog has no cases")

// settleRounds bounds the flush/render cycles of a headless run.
const settleRounds = 4

type options struct {
	ConfigPath  string
	CaseID      string
	View        string
	Axis        string
	Index       int
	Headless    bool
	Out         string
	Export      string
	ExportDir   string
	MetricsAddr string
	List        bool
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Headless {
		cfg.Renderer.Backend = "headless"
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stopMetrics()
	}

	s3Client, err := fetcher.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return err
	}

	cat, err := catalog.NewCatalogFromConfig(cfg, s3Client, logging.Component(logger, "catalog"))
	if err != nil {
		return err
	}
	cases, err := cat.Cases(ctx)
	if err != nil {
		return err
	}
	if opts.List {
		return listCases(stdout, cases)
	}
	selected, err := pickCase(cases, opts.CaseID)
	if err != nil {
		return err
	}

	f := fetcher.NewFetcher(
		fetcher.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second}),
		fetcher.WithCacheSize(cfg.Fetcher.CacheSizeMB<<20),
		fetcher.WithCacheTTL(time.Duration(cfg.Fetcher.CacheTTLSeconds)*time.Second),
		fetcher.WithRevalidate(cfg.Fetcher.Revalidate),
		fetcher.WithUserAgent(cfg.Fetcher.UserAgent),
		fetcher.WithS3Client(s3Client),
		fetcher.WithLogger(logging.Component(logger, "fetcher")),
		fetcher.WithMetrics(m),
	)
	meshes := loader.NewMeshCache(f,
		loader.WithLogger(logging.Component(logger, "mesh_cache")),
		loader.WithMetrics(m),
	)
	sched := scheduler.NewScheduler(
		scheduler.WithWorkers(cfg.Workers.Count),
		scheduler.WithQueueSize(cfg.Workers.QueueSize),
		scheduler.WithIdleTimeout(time.Duration(cfg.Workers.IdleTimeoutMS)*time.Millisecond),
		scheduler.WithLogger(logging.Component(logger, "scheduler")),
		scheduler.WithMetrics(m),
	)
	defer sched.Close()

	viewer, err := newViewer(ctx, cfg, selected, f, meshes, sched, opts.ExportDir, logger, m)
	if err != nil {
		return err
	}
	defer viewer.Close()
	viewer.SelectCase(selected)

	if opts.Headless {
		return runHeadless(ctx, viewer, sched, cfg, opts, stdout)
	}
	return runWindow(ctx, viewer, cfg, opts, logger)
}

func newViewer(ctx context.Context, cfg *config.Config, selected catalog.Case, f fetcher.Fetcher, meshes loader.MeshCache, sched scheduler.Scheduler, exportDir string, logger *slog.Logger, m *metrics.Metrics) (engine.Viewer, error) {
	backend, err := renderer.ParseBackendType(cfg.Renderer.Backend)
	if err != nil {
		return nil, err
	}
	theme, err := volume_pipeline.ParseTheme(cfg.Theme)
	if err != nil {
		return nil, err
	}
	l, err := newLight(cfg.Light)
	if err != nil {
		return nil, err
	}

	msaa := renderer.MSAAOff
	if cfg.Renderer.MSAA == 4 {
		msaa = renderer.MSAA4x
	}
	present := renderer.PresentModeUncapped
	if cfg.Renderer.VSync {
		present = renderer.PresentModeVSync
	}
	rendererOptions := []renderer.RendererBuilderOption{
		renderer.WithLight(l),
		renderer.WithLogger(logging.Component(logger, "renderer")),
		renderer.WithMetrics(m),
		renderer.WithMSAA(msaa),
		renderer.WithPresentMode(present),
	}

	alertLogger := logging.Component(logger, "alert")
	return engine.NewViewer(
		engine.WithImagingEnabled(cfg.ImagingEnabled),
		engine.WithFetcher(f),
		engine.WithMeshCache(meshes),
		engine.WithScheduler(sched),
		engine.WithExportHandler(stlExporter(ctx, selected, meshes, exportDir)),
		engine.WithAlertHandler(func(msg string) { alertLogger.Warn(msg) }),
		engine.WithTheme(theme),
		engine.WithRendererBackend(backend, rendererOptions...),
		engine.WithVolumePipelineOptions(
			volume_pipeline.WithSampleDistance(cfg.Volume.SampleDistance),
			volume_pipeline.WithShade(cfg.Volume.Shade),
		),
		engine.WithSlicePipelineOptions(
			slice_pipeline.WithColorWindow(cfg.Slice.ColorWindow),
			slice_pipeline.WithColorLevel(cfg.Slice.ColorLevel),
			slice_pipeline.WithAutoWindowLevel(cfg.Slice.AutoWindowLevel),
		),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	), nil
}

func newLight(cfg config.LightConfig) (light.Light, error) {
	t, err := light.ParseLightType(cfg.Type)
	if err != nil {
		return nil, err
	}
	return light.NewLight(
		light.WithType(t),
		light.WithDirection(cfg.Direction),
		light.WithAmbient(cfg.Ambient),
		light.WithDiffuse(cfg.Diffuse),
		light.WithSpecular(cfg.Specular, cfg.SpecularPower),
	), nil
}

// stlExporter writes the mesh of a structure of c to dir/<id>.stl.
func stlExporter(ctx context.Context, c catalog.Case, meshes loader.MeshCache, dir string) func(string) error {
	return func(id string) error {
		s, ok := c.Structure(id)
		if !ok {
			return fmt.Errorf("%w: %q", engine.ErrUnknownStructure, id)
		}
		mesh, err := meshes.Load(ctx, s.MeshURL)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating export directory: %w", err)
		}
		out, err := os.Create(filepath.Join(dir, id+".stl"))
		if err != nil {
			return fmt.Errorf("error creating export file: %w", err)
		}
		if err := decoder.EncodeSTL(out, mesh, s.Name); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}
}

func pickCase(cases []catalog.Case, id string) (catalog.Case, error) {
	if len(cases) == 0 {
		return catalog.Case{}, errNoCases
	}
	if id == "" {
		return cases[0], nil
	}
	for _, c := range cases {
		if c.ID == id {
			return c, nil
		}
	}
	return catalog.Case{}, fmt.Errorf("%w: %q", catalog.ErrCaseNotFound, id)
}

func listCases(w io.Writer, cases []catalog.Case) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tVOLUME\tSTRUCTURES")
	for _, c := range cases {
		volume := "-"
		if c.Volume != nil {
			volume = c.Volume.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.ID, c.Label, volume, len(c.Structures))
	}
	return tw.Flush()
}

// applyView switches to the requested view and slice. The slice index is applied after the
// volume has loaded, since the ranges come from its extent.
func applyView(ctx context.Context, v engine.Viewer, sched scheduler.Scheduler, opts options) error {
	if !v.State().ImagingEnabled {
		return nil
	}
	mode, err := engine.ParseViewMode(opts.View)
	if err != nil {
		return err
	}
	axis, err := slice.ParseAxis(opts.Axis)
	if err != nil {
		return err
	}
	if err := v.SetViewMode(mode); err != nil {
		return err
	}
	v.SetAxis(axis)
	if opts.Index < 0 {
		return nil
	}
	if err := sched.Flush(ctx); err != nil {
		return err
	}
	v.SetSliceIndex(opts.Index)
	return nil
}

func runHeadless(ctx context.Context, v engine.Viewer, sched scheduler.Scheduler, cfg *config.Config, opts options, stdout io.Writer) error {
	size := renderer.FixedSize{W: cfg.Renderer.Width, H: cfg.Renderer.Height}
	if err := v.MountViews(size, size); err != nil {
		return err
	}
	if err := applyView(ctx, v, sched, opts); err != nil {
		return err
	}

	for i := 0; i < settleRounds; i++ {
		if err := sched.Flush(ctx); err != nil {
			return err
		}
		if err := v.Render(); err != nil {
			return err
		}
		if sched.Pending() == 0 {
			break
		}
	}

	if opts.Export != "" {
		if err := v.ExportStructure(opts.Export); err != nil {
			return err
		}
	}
	if opts.Out != "" {
		if err := writeCapture(v, opts.Out); err != nil {
			return err
		}
	}

	st := v.State()
	fmt.Fprintf(stdout, "case=%s view=%s axis=%s index=%d volume=%s\n",
		st.CaseID, st.ViewMode, st.Axis.Label(), st.Indices[st.Axis], st.VolumeState)
	if st.Status != "" {
		fmt.Fprintf(stdout, "status=%q\n", st.Status)
	}
	if st.Error != "" {
		fmt.Fprintf(stdout, "error=%q\n", st.Error)
	}
	return nil
}

func writeCapture(v engine.Viewer, path string) error {
	img, err := v.Capture()
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating capture file: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("error encoding capture: %w", err)
	}
	return out.Close()
}

func runWindow(ctx context.Context, v engine.Viewer, cfg *config.Config, opts options, logger *slog.Logger) error {
	w, err := window.NewWindow(
		window.WithSize(cfg.Renderer.Width, cfg.Renderer.Height),
		window.WithLogger(logging.Component(logger, "window")),
	)
	if err != nil {
		return err
	}

	mode, err := engine.ParseViewMode(opts.View)
	if err != nil {
		return err
	}
	if err := v.SetViewMode(mode); err != nil {
		logger.Warn("initial view unavailable", "view", opts.View, "err", err)
	}
	if axis, err := slice.ParseAxis(opts.Axis); err == nil {
		v.SetAxis(axis)
	}

	eng := engine.NewEngine(
		engine.WithWindow(w),
		engine.WithViewer(v),
		engine.WithProfiling(cfg.Renderer.Profile),
		engine.WithEngineLogger(logger),
	)
	go func() {
		<-ctx.Done()
		eng.Quit()
	}()
	return eng.Run()
}

// serveMetrics exposes reg on addr/metrics and returns a function that shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
