package model

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/chewxy/math32"
)

// DefaultVolumeFormat is the format assumed when a descriptor leaves it blank.
const DefaultVolumeFormat = "vti"

// VolumeDescriptor identifies a volume asset. Two descriptors are the same request when their Key matches.
type VolumeDescriptor struct {
	// URL is the location of the volume file, either http(s)://, s3:// or a local path.
	URL string `yaml:"url" toml:"url" json:"url"`
	// Format is the container format, "vti" when blank.
	Format string `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
}

// Normalized returns a copy of the descriptor with a lower-case format, defaulting to vti.
func (d VolumeDescriptor) Normalized() VolumeDescriptor {
	d.URL = strings.TrimSpace(d.URL)
	d.Format = strings.ToLower(strings.TrimSpace(d.Format))
	if d.Format == "" {
		d.Format = DefaultVolumeFormat
	}
	return d
}

// Key returns the identity of the request, "format|url".
func (d VolumeDescriptor) Key() string {
	n := d.Normalized()
	return n.Format + "|" + n.URL
}

// Empty reports whether the descriptor carries no URL.
func (d VolumeDescriptor) Empty() bool {
	return strings.TrimSpace(d.URL) == ""
}

// Extent is an inclusive index range per axis: [iMin, iMax, jMin, jMax, kMin, kMax].
type Extent [6]int

// Axis returns the inclusive min and max index of axis 0 (i), 1 (j) or 2 (k).
func (e Extent) Axis(axis int) (int, int) {
	return e[axis*2], e[axis*2+1]
}

// IsZero reports whether every component is zero.
func (e Extent) IsZero() bool {
	return e == Extent{}
}

// Dimensions returns the number of samples along each axis.
func (e Extent) Dimensions() [3]int {
	return [3]int{e[1] - e[0] + 1, e[3] - e[2] + 1, e[5] - e[4] + 1}
}

// Bounds is an axis-aligned box in world coordinates: [xMin, xMax, yMin, yMax, zMin, zMax].
type Bounds [6]float32

// EmptyBounds returns inverted bounds suitable as the identity of Union.
func EmptyBounds() Bounds {
	inf := math32.Inf(1)
	return Bounds{inf, -inf, inf, -inf, inf, -inf}
}

// Valid reports whether the box is non-inverted on every axis.
func (b Bounds) Valid() bool {
	return b[0] <= b[1] && b[2] <= b[3] && b[4] <= b[5]
}

// Center returns the midpoint of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{(b[0] + b[1]) / 2, (b[2] + b[3]) / 2, (b[4] + b[5]) / 2}
}

// Size returns the edge lengths of the box.
func (b Bounds) Size() [3]float32 {
	return [3]float32{b[1] - b[0], b[3] - b[2], b[5] - b[4]}
}

// Diagonal returns the length of the box diagonal.
func (b Bounds) Diagonal() float32 {
	return common.Length3(b.Size())
}

// Union returns the smallest box containing both b and o. Invalid boxes are ignored.
func (b Bounds) Union(o Bounds) Bounds {
	if !o.Valid() {
		return b
	}
	if !b.Valid() {
		return o
	}
	return Bounds{
		math32.Min(b[0], o[0]), math32.Max(b[1], o[1]),
		math32.Min(b[2], o[2]), math32.Max(b[3], o[3]),
		math32.Min(b[4], o[4]), math32.Max(b[5], o[5]),
	}
}

// Extend grows the box to contain p.
func (b Bounds) Extend(p [3]float32) Bounds {
	for i := range 3 {
		b[i*2] = math32.Min(b[i*2], p[i])
		b[i*2+1] = math32.Max(b[i*2+1], p[i])
	}
	return b
}

// Structure is an anatomical segment attached to a case.
type Structure struct {
	// ID is unique within a case and keys visibility and render actors.
	ID string `yaml:"id" toml:"id" json:"id"`
	// Name is the display label.
	Name string `yaml:"name" toml:"name" json:"name"`
	// Color is a "#rrggbb" hex color.
	Color string `yaml:"color,omitempty" toml:"color,omitempty" json:"color,omitempty"`
	// MeshURL locates the surface mesh; blank means the structure has no geometry.
	MeshURL string `yaml:"mesh_url,omitempty" toml:"mesh_url,omitempty" json:"meshUrl,omitempty"`
}

// HasMesh reports whether the structure carries a mesh URL.
func (s Structure) HasMesh() bool {
	return strings.TrimSpace(s.MeshURL) != ""
}

// RGB parses Color into normalized components. Anything that is not a 6-digit hex color yields white.
func (s Structure) RGB() [3]float32 {
	return ParseHexColor(s.Color)
}

// ParseHexColor converts "#rrggbb" (leading # optional) to normalized RGB, returning white when malformed.
func ParseHexColor(value string) [3]float32 {
	white := [3]float32{1, 1, 1}
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return white
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return white
	}
	return [3]float32{
		float32((n>>16)&0xff) / 255,
		float32((n>>8)&0xff) / 255,
		float32(n&0xff) / 255,
	}
}

// ScalarStats summarises the scalar distribution of a volume.
type ScalarStats struct {
	Mean   float64
	StdDev float64
	Median float64
	// P01 and P99 are the 1st and 99th percentiles.
	P01 float64
	P99 float64
	// Samples is the number of voxels the statistics were computed from.
	Samples int
}

// WindowLevel derives a display window and level spanning the 1st to 99th percentile.
// It returns ok=false when the statistics are empty or flat.
func (s ScalarStats) WindowLevel() (window, level float32, ok bool) {
	if s.Samples == 0 || s.P99 <= s.P01 {
		return 0, 0, false
	}
	return float32(s.P99 - s.P01), float32((s.P99 + s.P01) / 2), true
}
