package renderer

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/chewxy/math32"
)

// LUTSize is the number of entries baked into a transfer-function lookup table.
const LUTSize = 256

// ColorPoint maps a scalar value to an RGB color.
type ColorPoint struct {
	X       float32
	R, G, B float32
}

// OpacityPoint maps a scalar value to an opacity.
type OpacityPoint struct {
	X, A float32
}

// TransferFunction maps scalar samples to color and opacity with piecewise-linear interpolation.
// Values outside the first and last points take the nearest point's value.
type TransferFunction struct {
	Colors    []ColorPoint
	Opacities []OpacityPoint
	// GradientRange ramps opacity from zero at the first gradient magnitude to full at the second.
	// A zero range disables gradient opacity.
	GradientRange [2]float32
}

// DefaultTransferFunction returns the CT soft-tissue and bone preset used for the volume view.
func DefaultTransferFunction() TransferFunction {
	return TransferFunction{
		Colors: []ColorPoint{
			{-3024, 0, 0, 0},
			{-77, 0.55, 0.25, 0.15},
			{94, 0.88, 0.6, 0.29},
			{179, 1, 0.94, 0.95},
			{260, 0.62, 0, 0},
			{3071, 0.8, 0.8, 0.8},
		},
		Opacities: []OpacityPoint{
			{-3024, 0},
			{-77, 0},
			{94, 0.29},
			{179, 0.55},
			{260, 0.84},
			{3071, 0.875},
		},
		GradientRange: [2]float32{2, 20},
	}
}

// Color returns the interpolated color at x.
func (tf TransferFunction) Color(x float32) [3]float32 {
	pts := tf.Colors
	if len(pts) == 0 {
		return [3]float32{1, 1, 1}
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= x })
	switch {
	case i == 0:
		return [3]float32{pts[0].R, pts[0].G, pts[0].B}
	case i == len(pts):
		p := pts[len(pts)-1]
		return [3]float32{p.R, p.G, p.B}
	}
	a, b := pts[i-1], pts[i]
	t := fraction(a.X, b.X, x)
	return [3]float32{lerp(a.R, b.R, t), lerp(a.G, b.G, t), lerp(a.B, b.B, t)}
}

// Opacity returns the interpolated scalar opacity at x.
func (tf TransferFunction) Opacity(x float32) float32 {
	pts := tf.Opacities
	if len(pts) == 0 {
		return 1
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].X >= x })
	switch {
	case i == 0:
		return pts[0].A
	case i == len(pts):
		return pts[len(pts)-1].A
	}
	a, b := pts[i-1], pts[i]
	return lerp(a.A, b.A, fraction(a.X, b.X, x))
}

// GradientOpacity returns the opacity multiplier for a gradient magnitude.
func (tf TransferFunction) GradientOpacity(magnitude float32) float32 {
	lo, hi := tf.GradientRange[0], tf.GradientRange[1]
	if hi <= lo {
		return 1
	}
	return common.Clamp((magnitude-lo)/(hi-lo), 0, 1)
}

// LUT bakes the function into LUTSize RGBA8 texels spanning scalarRange.
//
// Parameters:
//   - scalarRange: the minimum and maximum scalar of the volume
//
// Returns:
//   - []byte: LUTSize*4 bytes of RGBA
func (tf TransferFunction) LUT(scalarRange [2]float32) []byte {
	out := make([]byte, LUTSize*4)
	lo, hi := scalarRange[0], scalarRange[1]
	for i := range LUTSize {
		x := lo
		if hi > lo {
			x = lo + (hi-lo)*float32(i)/float32(LUTSize-1)
		}
		c := tf.Color(x)
		out[i*4] = toByte(c[0])
		out[i*4+1] = toByte(c[1])
		out[i*4+2] = toByte(c[2])
		out[i*4+3] = toByte(tf.Opacity(x))
	}
	return out
}

func fraction(a, b, x float32) float32 {
	if b == a {
		return 0
	}
	return (x - a) / (b - a)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func toByte(v float32) byte {
	return byte(math32.Round(common.Clamp(v, 0, 1) * 255))
}
