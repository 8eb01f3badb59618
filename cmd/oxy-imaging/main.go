// Command oxy-imaging opens a case from the catalog in the imaging viewer, either in a window or
// headless, writing a PNG capture and optional STL exports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const helpMessage = `
oxy-imaging views volumetric studies and their segmented structures

Usage: oxy-imaging [options]

      -config      =string   YAML or TOML configuration file.
      -case        =string   Case id to open; the first case when blank.
      -view        =string   Initial view, 3d or 2d.
      -axis        =string   Slice axis, i, j or k.
      -index       =number   Slice index on the chosen axis; negative keeps the default.
      -headless    (flag)    Render off-screen instead of opening a window.
      -out         =string   PNG file written by a headless run.
      -export      =string   Structure id to export as STL.
      -export-dir  =string   Directory receiving STL exports.
      -metrics-addr =string  Listen address of the prometheus endpoint.
      -list        (flag)    Print the catalog and exit.
  -h, -help        (flag)    Show help message

Keys in the window:

	v        toggle 3D / 2D
	1 2 3    axial, coronal, sagittal
	[ ]      previous / next slice
	shift+N  toggle structure N
	space    toggle the volume
	t        toggle theme
	r        reset camera
	e        export the first visible structure
`

func main() {
	var opts options
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "")
	flag.BoolVar(&showHelp, "h", false, "Show help message")
	flag.StringVar(&opts.ConfigPath, "config", "", "")
	flag.StringVar(&opts.CaseID, "case", "", "")
	flag.StringVar(&opts.View, "view", "3d", "")
	flag.StringVar(&opts.Axis, "axis", "k", "")
	flag.IntVar(&opts.Index, "index", -1, "")
	flag.BoolVar(&opts.Headless, "headless", false, "")
	flag.StringVar(&opts.Out, "out", "", "")
	flag.StringVar(&opts.Export, "export", "", "")
	flag.StringVar(&opts.ExportDir, "export-dir", ".", "")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "")
	flag.BoolVar(&opts.List, "list", false, "")
	flag.Usage = func() { fmt.Fprint(os.Stderr, helpMessage) }
	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "oxy-imaging:", err)
		stop()
		os.Exit(1)
	}
}
