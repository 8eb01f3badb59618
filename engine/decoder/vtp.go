package decoder

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// vtpDecoder reads VTK XML PolyData. Polygons are triangulated as fans and triangle strips are
// unrolled; vertices and lines are ignored.
type vtpDecoder struct{}

var _ MeshDecoder = &vtpDecoder{}

func (v *vtpDecoder) Decode(data []byte) (*model.Mesh, error) {
	doc, err := parseVTKDocument("vtp", data)
	if err != nil {
		return nil, err
	}
	poly := doc.file.PolyData
	if doc.file.Type != "PolyData" || poly == nil {
		return nil, &DecodeError{Format: "vtp", Reason: fmt.Sprintf("expected PolyData, found %q", doc.file.Type)}
	}

	mesh := &model.Mesh{}
	normalsComplete := true
	for i := range poly.Pieces {
		p := &poly.Pieces[i]
		base := uint32(mesh.VertexCount())

		points, err := piecePoints(doc, p)
		if err != nil {
			return nil, err
		}
		mesh.Positions = append(mesh.Positions, points...)

		normals, err := pieceNormals(doc, p, len(points))
		if err != nil {
			return nil, err
		}
		if normals == nil {
			normalsComplete = false
		} else {
			mesh.Normals = append(mesh.Normals, normals...)
		}

		nPoints := uint32(len(points) / 3)
		if err := appendCells(doc, &p.Polys, base, nPoints, fanTriangles, &mesh.Indices); err != nil {
			return nil, err
		}
		if err := appendCells(doc, &p.Strips, base, nPoints, stripTriangles, &mesh.Indices); err != nil {
			return nil, err
		}
	}

	if mesh.VertexCount() == 0 {
		return nil, &DecodeError{Format: "vtp", Reason: "mesh has no points"}
	}
	if !normalsComplete {
		mesh.Normals = nil
	}
	mesh.ComputeNormals()
	return mesh, nil
}

func piecePoints(doc *vtkDocument, p *vtkPiece) ([]float32, error) {
	if len(p.Points.Arrays) == 0 {
		if p.NumberOfPoints == 0 {
			return nil, nil
		}
		return nil, &DecodeError{Format: "vtp", Reason: "Points has no DataArray"}
	}
	arr := &p.Points.Arrays[0]
	if arr.components() != 3 {
		return nil, &DecodeError{Format: "vtp", Reason: fmt.Sprintf("points have %d components, expected 3", arr.components())}
	}
	points, err := decodeArray[float32](doc, arr)
	if err != nil {
		return nil, err
	}
	if len(points) != p.NumberOfPoints*3 {
		return nil, &DecodeError{Format: "vtp", Reason: fmt.Sprintf("piece declares %d points, found %d", p.NumberOfPoints, len(points)/3)}
	}
	return points, nil
}

func pieceNormals(doc *vtkDocument, p *vtkPiece, want int) ([]float32, error) {
	if p.PointData.Normals == "" {
		return nil, nil
	}
	arr := (vtkArrayGroup{Arrays: p.PointData.Arrays}).named(p.PointData.Normals)
	if arr == nil || arr.components() != 3 {
		return nil, nil
	}
	normals, err := decodeArray[float32](doc, arr)
	if err != nil {
		return nil, err
	}
	if len(normals) != want {
		return nil, nil
	}
	return normals, nil
}

type triangulator func(cell []int64, emit func(a, b, c int64))

func fanTriangles(cell []int64, emit func(a, b, c int64)) {
	for i := 1; i+1 < len(cell); i++ {
		emit(cell[0], cell[i], cell[i+1])
	}
}

func stripTriangles(cell []int64, emit func(a, b, c int64)) {
	for i := 0; i+2 < len(cell); i++ {
		if i%2 == 0 {
			emit(cell[i], cell[i+1], cell[i+2])
		} else {
			emit(cell[i+1], cell[i], cell[i+2])
		}
	}
}

// appendCells reads a connectivity/offsets cell array and appends its triangles.
func appendCells(doc *vtkDocument, g *vtkArrayGroup, base, nPoints uint32, tri triangulator, indices *[]uint32) error {
	connArr, offArr := g.named("connectivity"), g.named("offsets")
	if connArr == nil && offArr == nil {
		return nil
	}
	if connArr == nil || offArr == nil {
		return &DecodeError{Format: "vtp", Reason: "cell array needs both connectivity and offsets"}
	}
	conn, err := decodeArray[int64](doc, connArr)
	if err != nil {
		return err
	}
	offsets, err := decodeArray[int64](doc, offArr)
	if err != nil {
		return err
	}

	var badIndex int64 = -1
	emit := func(a, b, c int64) {
		for _, idx := range [3]int64{a, b, c} {
			if idx < 0 || idx >= int64(nPoints) {
				badIndex = idx
				return
			}
		}
		*indices = append(*indices, base+uint32(a), base+uint32(b), base+uint32(c))
	}

	start := int64(0)
	for _, end := range offsets {
		if end < start || end > int64(len(conn)) {
			return &DecodeError{Format: "vtp", Reason: fmt.Sprintf("cell offset %d out of range", end)}
		}
		tri(conn[start:end], emit)
		if badIndex >= 0 {
			return &DecodeError{Format: "vtp", Reason: fmt.Sprintf("cell references point %d of %d", badIndex, nPoints)}
		}
		start = end
	}
	return nil
}
