package model

import (
	"github.com/Carmen-Shannon/oxy-imaging/common"
)

// Mesh is a decoded triangle surface. It is immutable once decoded and shared through the mesh cache.
type Mesh struct {
	// Name is an optional label carried by the source file.
	Name string
	// Positions holds xyz triples.
	Positions []float32
	// Normals holds one xyz normal per position.
	Normals []float32
	// Indices holds three vertex indices per triangle.
	Indices []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i int) [3]float32 {
	return [3]float32{m.Positions[i*3], m.Positions[i*3+1], m.Positions[i*3+2]}
}

// Bounds returns the world-space box around every vertex.
func (m *Mesh) Bounds() Bounds {
	b := EmptyBounds()
	for i := range m.VertexCount() {
		b = b.Extend(m.Vertex(i))
	}
	return b
}

// ComputeNormals fills Normals with area-weighted vertex normals when they are missing or mis-sized.
func (m *Mesh) ComputeNormals() {
	if len(m.Normals) == len(m.Positions) {
		return
	}
	normals := make([]float32, len(m.Positions))
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := int(m.Indices[t]), int(m.Indices[t+1]), int(m.Indices[t+2])
		n := common.Cross3(common.Sub3(m.Vertex(b), m.Vertex(a)), common.Sub3(m.Vertex(c), m.Vertex(a)))
		for _, v := range [3]int{a, b, c} {
			normals[v*3] += n[0]
			normals[v*3+1] += n[1]
			normals[v*3+2] += n[2]
		}
	}
	for v := range len(normals) / 3 {
		n := common.Normalize3([3]float32{normals[v*3], normals[v*3+1], normals[v*3+2]})
		normals[v*3], normals[v*3+1], normals[v*3+2] = n[0], n[1], n[2]
	}
	m.Normals = normals
}

// Vertices interleaves positions and normals into the GPU vertex layout.
func (m *Mesh) Vertices() []GPUVertex {
	m.ComputeNormals()
	out := make([]GPUVertex, m.VertexCount())
	for i := range out {
		out[i].Position = m.Vertex(i)
		out[i].Normal = [3]float32{m.Normals[i*3], m.Normals[i*3+1], m.Normals[i*3+2]}
	}
	return out
}
