// Package fixture builds small volumes, meshes and a scripted fetcher for tests across the engine.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// VTI returns an ASCII VTK ImageData file over extent whose scalar at linear offset n is base+n.
func VTI(extent model.Extent, spacing [3]float32, base float32) []byte {
	d := extent.Dimensions()
	n := d[0] * d[1] * d[2]
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprint(base + float32(i))
	}
	ext := fmt.Sprintf("%d %d %d %d %d %d", extent[0], extent[1], extent[2], extent[3], extent[4], extent[5])
	return []byte(fmt.Sprintf(`<?xml version="1.0"?>
<VTKFile type="ImageData" version="1.0" byte_order="LittleEndian" header_type="UInt32">
  <ImageData WholeExtent="%s" Origin="0 0 0" Spacing="%g %g %g">
    <Piece Extent="%s">
      <PointData Scalars="scalars">
        <DataArray type="Float32" Name="scalars" format="ascii">%s</DataArray>
      </PointData>
    </Piece>
  </ImageData>
</VTKFile>
`, ext, spacing[0], spacing[1], spacing[2], ext, strings.Join(values, " ")))
}

// Volume returns an in-memory volume over extent with unit spacing and a ramp of scalars from base.
func Volume(extent model.Extent, base float32) *model.Volume {
	d := extent.Dimensions()
	scalars := make([]float32, d[0]*d[1]*d[2])
	for i := range scalars {
		scalars[i] = base + float32(i)
	}
	return &model.Volume{
		Name:        "scalars",
		Extent:      extent,
		Spacing:     [3]float32{1, 1, 1},
		Scalars:     scalars,
		ScalarRange: [2]float32{base, base + float32(len(scalars)-1)},
	}
}

// Triangle returns a single right triangle in the z=offset plane.
func Triangle(offset float32) *model.Mesh {
	m := &model.Mesh{
		Positions: []float32{0, 0, offset, 1, 0, offset, 0, 1, offset},
		Indices:   []uint32{0, 1, 2},
	}
	m.ComputeNormals()
	return m
}

// STL returns mesh encoded as binary STL.
func STL(mesh *model.Mesh) []byte {
	var buf bytes.Buffer
	if err := decoder.EncodeSTL(&buf, mesh, "fixture"); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Fetcher serves scripted payloads with optional per-URL latency and counts every request.
type Fetcher struct {
	mu      sync.Mutex
	payload map[string][]byte
	fail    map[string]error
	delay   map[string]time.Duration
	calls   map[string]int
}

var _ fetcher.Fetcher = &Fetcher{}

// NewFetcher creates an empty scripted fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		payload: make(map[string][]byte),
		fail:    make(map[string]error),
		delay:   make(map[string]time.Duration),
		calls:   make(map[string]int),
	}
}

// Serve registers data for url, clearing any scripted failure.
func (f *Fetcher) Serve(url string, data []byte) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload[url] = data
	delete(f.fail, url)
	return f
}

// Fail makes every request for url return err.
func (f *Fetcher) Fail(url string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = err
	return f
}

// Delay holds every request for url for d before answering.
func (f *Fetcher) Delay(url string, d time.Duration) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[url] = d
	return f
}

// Calls returns how many requests reached url.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Total returns the number of requests across every URL.
func (f *Fetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	data, ok := f.payload[url]
	err := f.fail[url]
	delay := f.delay[url]
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, &fetcher.TransportError{URL: url, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &fetcher.TransportError{URL: url, StatusCode: 404, Status: "404 Not Found"}
	}
	return data, nil
}

func (f *Fetcher) Backend(string) (fetcher.FetcherBackendType, error) {
	return fetcher.BackendTypeHTTP, nil
}
