// Package slice maps a volume extent to per-axis slice ranges and default camera orientations.
// Everything here is a pure function of its inputs.
package slice

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// Axis is one of the three orthogonal index axes of a volume.
type Axis int

const (
	AxisI Axis = iota
	AxisJ
	AxisK
)

// Axes returns the axes in display order: axial, coronal, sagittal.
func Axes() []Axis {
	return []Axis{AxisK, AxisJ, AxisI}
}

// ParseAxis accepts "i", "j" or "k".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "i", "I":
		return AxisI, nil
	case "j", "J":
		return AxisJ, nil
	case "k", "K":
		return AxisK, nil
	default:
		return AxisK, fmt.Errorf("unknown slice axis %q", s)
	}
}

func (a Axis) String() string {
	switch a {
	case AxisI:
		return "i"
	case AxisJ:
		return "j"
	case AxisK:
		return "k"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Label is the anatomical plane name of the axis.
func (a Axis) Label() string {
	switch a {
	case AxisI:
		return "Sagittal"
	case AxisJ:
		return "Coronal"
	case AxisK:
		return "Axial"
	default:
		return a.String()
	}
}

// Valid reports whether a names one of the three axes.
func (a Axis) Valid() bool {
	return a >= AxisI && a <= AxisK
}

// Range is an inclusive index range.
type Range struct {
	Min, Max int
}

// Degenerate reports whether the range holds a single index, leaving nothing to scroll through.
func (r Range) Degenerate() bool {
	return r.Min == r.Max
}

// Clamp bounds v to the range. A degenerate range always yields Min.
func (r Range) Clamp(v int) int {
	if r.Degenerate() {
		return r.Min
	}
	return common.Clamp(v, r.Min, r.Max)
}

// Default is the middle index, floor((Min+Max)/2).
func (r Range) Default() int {
	sum := r.Min + r.Max
	if sum < 0 && sum%2 != 0 {
		return sum/2 - 1
	}
	return sum / 2
}

// Ranges holds one Range per axis.
type Ranges [3]Range

// RangesFromExtent derives the per-axis ranges of an extent.
func RangesFromExtent(e model.Extent) Ranges {
	var r Ranges
	for axis := range 3 {
		lo, hi := e.Axis(axis)
		r[axis] = Range{Min: lo, Max: hi}
	}
	return r
}

// HasExtent reports whether e describes any data; the zero extent means "no volume".
func HasExtent(e model.Extent) bool {
	return !e.IsZero()
}

// Range returns the range of axis.
func (r Ranges) Range(axis Axis) Range {
	return r[axis]
}

// Clamp bounds v into the range of axis.
func (r Ranges) Clamp(axis Axis, v int) int {
	return r[axis].Clamp(v)
}

// Default returns the middle index of axis.
func (r Ranges) Default(axis Axis) int {
	return r[axis].Default()
}

// Defaults returns the middle index of every axis.
func (r Ranges) Defaults() Indices {
	return Indices{r[0].Default(), r[1].Default(), r[2].Default()}
}

// Indices holds one slice index per axis.
type Indices [3]int

// ClampAll bounds every index into its range.
func (r Ranges) ClampAll(idx Indices) Indices {
	for axis := range 3 {
		idx[axis] = r[axis].Clamp(idx[axis])
	}
	return idx
}

// Orientation is the camera framing for a slice: the direction of projection and the view-up vector.
// FocalPoint and Position optionally pin the camera; nil derives them from the slice bounds.
type Orientation struct {
	Direction  [3]float32
	ViewUp     [3]float32
	FocalPoint *[3]float32
	Position   *[3]float32
}

var defaultOrientations = [3]Orientation{
	AxisI: {Direction: [3]float32{1, 0, 0}, ViewUp: [3]float32{0, 1, 0}},
	AxisJ: {Direction: [3]float32{0, -1, 0}, ViewUp: [3]float32{0, 1, 0}},
	AxisK: {Direction: [3]float32{0, 0, 1}, ViewUp: [3]float32{0, 1, 0}},
}

// DefaultOrientation returns the fixed framing of axis.
func DefaultOrientation(axis Axis) Orientation {
	if !axis.Valid() {
		return defaultOrientations[AxisK]
	}
	return defaultOrientations[axis]
}

// MainViewOrientation returns the framing the viewer requests for the main slice view, which
// keeps the patient upright on the coronal and sagittal planes. It returns nil for the axial
// plane, which uses its default.
func MainViewOrientation(axis Axis) *Orientation {
	switch axis {
	case AxisJ:
		return &Orientation{Direction: [3]float32{0, -1, 0}, ViewUp: [3]float32{0, 0, 1}}
	case AxisI:
		return &Orientation{Direction: [3]float32{1, 0, 0}, ViewUp: [3]float32{0, 0, 1}}
	default:
		return nil
	}
}
