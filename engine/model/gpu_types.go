package model

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUVertex is the GPU-aligned representation of a single surface mesh vertex.
// Matches the WGSL VertexInput struct of the mesh pipeline.
// Size: 24 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0: vertex position in world space (12 bytes)
	Normal   [3]float32 // offset 12: vertex normal for shading (12 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 24-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 24)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Position[i]))
		binary.LittleEndian.PutUint32(buf[12+i*4:], math.Float32bits(g.Normal[i]))
	}
	return buf
}

// MarshalVertices serializes a vertex slice into one contiguous buffer.
func MarshalVertices(vertices []GPUVertex) []byte {
	out := make([]byte, 0, len(vertices)*24)
	for i := range vertices {
		out = append(out, vertices[i].Marshal()...)
	}
	return out
}
