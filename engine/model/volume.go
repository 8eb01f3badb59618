package model

// Volume is a decoded scalar image on a regular grid. It is immutable once decoded and may be
// shared by the 3D and 2D views.
type Volume struct {
	// Name is the scalar array name from the source file.
	Name string
	// Extent is the inclusive index range of the grid.
	Extent Extent
	// Origin is the world position of index (0, 0, 0).
	Origin [3]float32
	// Spacing is the world distance between neighbouring samples per axis.
	Spacing [3]float32
	// Scalars holds one value per sample, i fastest then j then k.
	Scalars []float32
	// ScalarRange is the minimum and maximum of Scalars.
	ScalarRange [2]float32
	// Stats is computed at decode time and drives automatic window/level.
	Stats ScalarStats
}

// Dimensions returns the number of samples along i, j and k.
func (v *Volume) Dimensions() [3]int {
	return v.Extent.Dimensions()
}

// Index returns the offset into Scalars of the sample at extent coordinates (i, j, k),
// or -1 when the coordinates fall outside the extent.
func (v *Volume) Index(i, j, k int) int {
	e := v.Extent
	if i < e[0] || i > e[1] || j < e[2] || j > e[3] || k < e[4] || k > e[5] {
		return -1
	}
	d := e.Dimensions()
	return (k-e[4])*d[0]*d[1] + (j-e[2])*d[0] + (i - e[0])
}

// Value returns the scalar at extent coordinates (i, j, k) and whether it exists.
func (v *Volume) Value(i, j, k int) (float32, bool) {
	idx := v.Index(i, j, k)
	if idx < 0 || idx >= len(v.Scalars) {
		return 0, false
	}
	return v.Scalars[idx], true
}

// WorldPoint converts extent coordinates to world coordinates.
func (v *Volume) WorldPoint(i, j, k float32) [3]float32 {
	return [3]float32{
		v.Origin[0] + i*v.Spacing[0],
		v.Origin[1] + j*v.Spacing[1],
		v.Origin[2] + k*v.Spacing[2],
	}
}

// Bounds returns the world-space box spanned by the extent.
func (v *Volume) Bounds() Bounds {
	e := v.Extent
	lo := v.WorldPoint(float32(e[0]), float32(e[2]), float32(e[4]))
	hi := v.WorldPoint(float32(e[1]), float32(e[3]), float32(e[5]))
	b := EmptyBounds()
	return b.Extend(lo).Extend(hi)
}

// SliceBounds returns the world-space box of the single-sample slab at index along axis (0 i, 1 j, 2 k).
// The index is clamped to the extent.
func (v *Volume) SliceBounds(axis, index int) Bounds {
	b := v.Bounds()
	lo, hi := v.Extent.Axis(axis)
	if index < lo {
		index = lo
	}
	if index > hi {
		index = hi
	}
	w := v.Origin[axis] + float32(index)*v.Spacing[axis]
	b[axis*2], b[axis*2+1] = w, w
	return b
}
