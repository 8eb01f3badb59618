package decoder

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// stlDecoder reads binary and ASCII STL. Vertices are not welded; normals are recomputed
// per vertex from the facets so shading matches the other mesh sources.
type stlDecoder struct{}

var _ MeshDecoder = &stlDecoder{}

func (s *stlDecoder) Decode(data []byte) (*model.Mesh, error) {
	if isBinarySTL(data) {
		return decodeBinarySTL(data)
	}
	return decodeASCIISTL(data)
}

// isBinarySTL checks the size implied by the triangle count, since binary headers may start with "solid" too.
func isBinarySTL(data []byte) bool {
	if len(data) < 84 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[80:84])
	return uint64(len(data)) == 84+uint64(n)*50
}

func decodeBinarySTL(data []byte) (*model.Mesh, error) {
	n := int(binary.LittleEndian.Uint32(data[80:84]))
	mesh := &model.Mesh{
		Name:      strings.TrimRight(strings.TrimPrefix(string(data[:80]), "solid "), "\x00 "),
		Positions: make([]float32, 0, n*9),
		Indices:   make([]uint32, 0, n*3),
	}
	for t := range n {
		rec := data[84+t*50:]
		for v := range 3 {
			for c := range 3 {
				off := 12 + v*12 + c*4
				mesh.Positions = append(mesh.Positions, math.Float32frombits(binary.LittleEndian.Uint32(rec[off:])))
			}
			mesh.Indices = append(mesh.Indices, uint32(t*3+v))
		}
	}
	if n == 0 {
		return nil, &DecodeError{Format: "stl", Reason: "no facets"}
	}
	mesh.ComputeNormals()
	return mesh, nil
}

func decodeASCIISTL(data []byte) (*model.Mesh, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	mesh := &model.Mesh{}
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			if line == 1 && len(fields) > 1 {
				mesh.Name = strings.Join(fields[1:], " ")
			}
		case "vertex":
			if len(fields) != 4 {
				return nil, &DecodeError{Format: "stl", Reason: fmt.Sprintf("line %d: malformed vertex", line)}
			}
			for _, f := range fields[1:] {
				v, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, &DecodeError{Format: "stl", Reason: fmt.Sprintf("line %d", line), Err: err}
				}
				mesh.Positions = append(mesh.Positions, float32(v))
			}
			mesh.Indices = append(mesh.Indices, uint32(len(mesh.Indices)))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &DecodeError{Format: "stl", Reason: "reading ascii stl", Err: err}
	}
	if line == 0 || len(mesh.Indices) == 0 {
		return nil, &DecodeError{Format: "stl", Reason: "no facets"}
	}
	if len(mesh.Indices)%3 != 0 {
		return nil, &DecodeError{Format: "stl", Reason: "facet with other than three vertices"}
	}
	mesh.ComputeNormals()
	return mesh, nil
}

// EncodeSTL writes mesh as binary STL with per-facet normals.
//
// Parameters:
//   - w: the destination
//   - mesh: the mesh to export
//   - name: written into the 80-byte header
//
// Returns:
//   - error: an error if writing fails
func EncodeSTL(w io.Writer, mesh *model.Mesh, name string) error {
	bw := bufio.NewWriter(w)
	var header [80]byte
	copy(header[:], "solid "+name)
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write stl header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(mesh.TriangleCount())); err != nil {
		return fmt.Errorf("failed to write stl facet count: %w", err)
	}

	var rec [50]byte
	for t := range mesh.TriangleCount() {
		a := mesh.Vertex(int(mesh.Indices[t*3]))
		b := mesh.Vertex(int(mesh.Indices[t*3+1]))
		c := mesh.Vertex(int(mesh.Indices[t*3+2]))
		n := facetNormal(a, b, c)
		for i, v := range [12]float32{n[0], n[1], n[2], a[0], a[1], a[2], b[0], b[1], b[2], c[0], c[1], c[2]} {
			binary.LittleEndian.PutUint32(rec[i*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("failed to write stl facet %d: %w", t, err)
		}
	}
	return bw.Flush()
}

func facetNormal(a, b, c [3]float32) [3]float32 {
	return common.Normalize3(common.Cross3(common.Sub3(b, a), common.Sub3(c, a)))
}
