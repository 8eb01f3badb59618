package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeDescriptorKey(t *testing.T) {
	a := VolumeDescriptor{URL: "https://x/ct.vti"}
	b := VolumeDescriptor{URL: " https://x/ct.vti ", Format: "VTI"}
	assert.Equal(t, "vti|https://x/ct.vti", a.Key())
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), VolumeDescriptor{URL: "https://x/ct.vti", Format: "nrrd"}.Key())
	assert.True(t, VolumeDescriptor{URL: "  "}.Empty())
}

func TestVolumeIndexing(t *testing.T) {
	v := &Volume{
		Extent:  Extent{1, 3, 0, 1, 5, 6},
		Origin:  [3]float32{10, 20, 30},
		Spacing: [3]float32{0.5, 1, 2},
		Scalars: make([]float32, 3*2*2),
	}
	for i := range v.Scalars {
		v.Scalars[i] = float32(i)
	}

	assert.Equal(t, [3]int{3, 2, 2}, v.Dimensions())
	assert.Equal(t, 0, v.Index(1, 0, 5))
	assert.Equal(t, 11, v.Index(3, 1, 6))
	assert.Equal(t, -1, v.Index(0, 0, 5))

	val, ok := v.Value(2, 1, 6)
	require.True(t, ok)
	assert.Equal(t, float32(6+3+1), val)

	b := v.Bounds()
	assert.Equal(t, Bounds{10.5, 11.5, 20, 21, 40, 42}, b)

	s := v.SliceBounds(2, 99)
	assert.Equal(t, float32(42), s[4])
	assert.Equal(t, float32(42), s[5])
}

func TestBoundsUnion(t *testing.T) {
	a := Bounds{0, 1, 0, 1, 0, 1}
	b := Bounds{-1, 0.5, 2, 3, 0, 0}
	u := a.Union(b)
	assert.Equal(t, Bounds{-1, 1, 0, 3, 0, 1}, u)
	assert.Equal(t, a, a.Union(EmptyBounds()))
	assert.Equal(t, a, EmptyBounds().Union(a))
	assert.False(t, EmptyBounds().Valid())
	assert.Equal(t, [3]float32{0, 1.5, 0.5}, u.Center())
}

func TestParseHexColor(t *testing.T) {
	assert.Equal(t, [3]float32{1, 0, 0}, ParseHexColor("#ff0000"))
	assert.Equal(t, [3]float32{0, 0, 1}, ParseHexColor("0000FF"))
	assert.Equal(t, [3]float32{1, 1, 1}, ParseHexColor(""))
	assert.Equal(t, [3]float32{1, 1, 1}, ParseHexColor("#fff"))
	assert.Equal(t, [3]float32{1, 1, 1}, ParseHexColor("#gg0000"))
	assert.Equal(t, [3]float32{1, 1, 1}, Structure{}.RGB())
}

func TestMeshNormalsAndBounds(t *testing.T) {
	m := &Mesh{
		Positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:   []uint32{0, 1, 2},
	}
	m.ComputeNormals()
	require.Len(t, m.Normals, 9)
	for v := range 3 {
		assert.InDelta(t, 1, m.Normals[v*3+2], 1e-6)
	}
	assert.Equal(t, Bounds{0, 1, 0, 1, 0, 0}, m.Bounds())
	assert.Equal(t, 1, m.TriangleCount())

	verts := m.Vertices()
	require.Len(t, verts, 3)
	assert.Len(t, MarshalVertices(verts), 72)
	assert.Equal(t, 24, verts[0].Size())
}
