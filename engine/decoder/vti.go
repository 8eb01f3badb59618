package decoder

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/chewxy/math32"
)

// MaxVolumeVoxels bounds the sample count of a decoded volume.
const MaxVolumeVoxels = 1 << 30

// vtiDecoder reads VTK XML ImageData.
type vtiDecoder struct{}

var _ VolumeDecoder = &vtiDecoder{}

func (v *vtiDecoder) Decode(data []byte) (*model.Volume, error) {
	doc, err := parseVTKDocument("vti", data)
	if err != nil {
		return nil, err
	}
	img := doc.file.ImageData
	if doc.file.Type != "ImageData" || img == nil {
		return nil, &DecodeError{Format: "vti", Reason: fmt.Sprintf("expected ImageData, found %q", doc.file.Type)}
	}

	whole, err := parseInts(img.WholeExtent, 6)
	if err != nil {
		return nil, &DecodeError{Format: "vti", Reason: "invalid WholeExtent", Err: err}
	}
	vol := &model.Volume{Extent: model.Extent(whole)}
	total, err := voxelCount(vol.Extent)
	if err != nil {
		return nil, &DecodeError{Format: "vti", Reason: "invalid WholeExtent", Err: err}
	}
	if vol.Origin, err = parseFloats3(img.Origin, [3]float32{0, 0, 0}); err != nil {
		return nil, &DecodeError{Format: "vti", Reason: "invalid Origin", Err: err}
	}
	if vol.Spacing, err = parseFloats3(img.Spacing, [3]float32{1, 1, 1}); err != nil {
		return nil, &DecodeError{Format: "vti", Reason: "invalid Spacing", Err: err}
	}
	if len(img.Pieces) == 0 {
		return nil, &DecodeError{Format: "vti", Reason: "no Piece element"}
	}

	if len(img.Pieces) == 1 && samePieceExtent(img.Pieces[0].Extent, img.WholeExtent) {
		scalars, name, err := pieceScalars(doc, &img.Pieces[0], total)
		if err != nil {
			return nil, err
		}
		vol.Scalars, vol.Name = scalars, name
	} else {
		// pieces are decoded before the whole volume is allocated so that its size is backed
		// by data actually present in the file
		pieces := make([]decodedPiece, len(img.Pieces))
		decoded := 0
		for i := range img.Pieces {
			if pieces[i], err = decodePiece(doc, &img.Pieces[i]); err != nil {
				return nil, err
			}
			decoded += len(pieces[i].scalars)
		}
		if decoded < total {
			return nil, &DecodeError{Format: "vti", Reason: fmt.Sprintf("pieces hold %d samples, WholeExtent needs %d", decoded, total)}
		}
		vol.Scalars = make([]float32, total)
		for _, p := range pieces {
			if err := placePiece(vol, p); err != nil {
				return nil, err
			}
		}
	}

	vol.ScalarRange = scalarRange(vol.Scalars)
	vol.Stats = computeStats(vol.Scalars)
	return vol, nil
}

func samePieceExtent(piece, whole string) bool {
	if piece == "" {
		return true
	}
	p, err1 := parseInts(piece, 6)
	w, err2 := parseInts(whole, 6)
	return err1 == nil && err2 == nil && [6]int(p) == [6]int(w)
}

// pieceScalars decodes the active point scalars of a piece, keeping the first component.
func pieceScalars(doc *vtkDocument, p *vtkPiece, want int) ([]float32, string, error) {
	arr := activeArray(p.PointData)
	if arr == nil {
		return nil, "", &DecodeError{Format: "vti", Reason: "no point data scalars"}
	}
	values, err := decodeArray[float32](doc, arr)
	if err != nil {
		return nil, "", err
	}
	nc := arr.components()
	if nc > 1 {
		first := make([]float32, len(values)/nc)
		for i := range first {
			first[i] = values[i*nc]
		}
		values = first
	}
	if len(values) != want {
		return nil, "", &DecodeError{Format: "vti", Reason: fmt.Sprintf("scalar array %s has %d values, extent needs %d", arr.Name, len(values), want)}
	}
	return values, arr.Name, nil
}

type decodedPiece struct {
	extent  model.Extent
	name    string
	scalars []float32
}

func decodePiece(doc *vtkDocument, p *vtkPiece) (decodedPiece, error) {
	ext, err := parseInts(p.Extent, 6)
	if err != nil {
		return decodedPiece{}, &DecodeError{Format: "vti", Reason: "invalid piece Extent", Err: err}
	}
	pe := model.Extent(ext)
	n, err := voxelCount(pe)
	if err != nil {
		return decodedPiece{}, &DecodeError{Format: "vti", Reason: "invalid piece Extent", Err: err}
	}
	scalars, name, err := pieceScalars(doc, p, n)
	if err != nil {
		return decodedPiece{}, err
	}
	return decodedPiece{extent: pe, name: name, scalars: scalars}, nil
}

// placePiece copies a sub-extent piece into its place in the whole volume.
func placePiece(vol *model.Volume, p decodedPiece) error {
	pe := p.extent
	pd := pe.Dimensions()
	vol.Name = p.name
	src := 0
	for k := pe[4]; k <= pe[5]; k++ {
		for j := pe[2]; j <= pe[3]; j++ {
			dst := vol.Index(pe[0], j, k)
			if dst < 0 || vol.Index(pe[1], j, k) < 0 {
				return &DecodeError{Format: "vti", Reason: fmt.Sprintf("piece extent %v outside whole extent", [6]int(pe))}
			}
			copy(vol.Scalars[dst:dst+pd[0]], p.scalars[src:src+pd[0]])
			src += pd[0]
		}
	}
	return nil
}

// voxelCount returns the number of samples in e, rejecting inverted extents and counts above
// MaxVolumeVoxels.
func voxelCount(e model.Extent) (int, error) {
	n := int64(1)
	for axis := range 3 {
		lo, hi := e.Axis(axis)
		if hi < lo {
			return 0, fmt.Errorf("inverted extent on axis %d", axis)
		}
		d := int64(hi) - int64(lo) + 1
		if d <= 0 || d > MaxVolumeVoxels || n*d > MaxVolumeVoxels {
			return 0, fmt.Errorf("extent %v exceeds %d samples", [6]int(e), MaxVolumeVoxels)
		}
		n *= d
	}
	return int(n), nil
}

func activeArray(pd vtkAttributeData) *vtkDataArray {
	if pd.Scalars != "" {
		if a := (vtkArrayGroup{Arrays: pd.Arrays}).named(pd.Scalars); a != nil {
			return a
		}
	}
	if len(pd.Arrays) == 0 {
		return nil
	}
	return &pd.Arrays[0]
}

func scalarRange(values []float32) [2]float32 {
	if len(values) == 0 {
		return [2]float32{}
	}
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, v := range values {
		if math32.IsNaN(v) {
			continue
		}
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	if lo > hi {
		return [2]float32{}
	}
	return [2]float32{lo, hi}
}
