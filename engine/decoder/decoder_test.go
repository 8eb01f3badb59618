package decoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVTIEncodings(t *testing.T) {
	cases := map[string]vtkArrayEncoding{
		"ascii":                       {format: "ascii"},
		"binary":                      {format: "binary"},
		"binary uint64 header":        {format: "binary", header64: true},
		"binary zlib":                 {format: "binary", compressed: true, blockSize: 10},
		"appended raw":                {format: "appended"},
		"appended raw zlib uint64":    {format: "appended", compressed: true, header64: true, blockSize: 8},
		"appended base64":             {format: "appended", base64: true},
		"appended base64 zlib blocks": {format: "appended", base64: true, compressed: true, blockSize: 6},
	}
	for name, enc := range cases {
		t.Run(name, func(t *testing.T) {
			data, values := buildVTI(enc)
			vol, err := DecodeVolume("vti", data)
			require.NoError(t, err)

			assert.Equal(t, model.Extent{0, 2, 0, 1, 0, 1}, vol.Extent)
			assert.Equal(t, [3]float32{-1, 0, 2.5}, vol.Origin)
			assert.Equal(t, [3]float32{0.5, 1, 2}, vol.Spacing)
			assert.Equal(t, "ImageScalars", vol.Name)
			require.Len(t, vol.Scalars, len(values))
			for i, v := range values {
				assert.Equal(t, float32(v), vol.Scalars[i])
			}
			assert.Equal(t, [2]float32{-5, 6}, vol.ScalarRange)
			assert.Equal(t, len(values), vol.Stats.Samples)
			assert.InDelta(t, 0.5, vol.Stats.Mean, 1e-9)
		})
	}
}

func TestDecodeVTIMultiplePieces(t *testing.T) {
	f := &vtkFixture{enc: vtkArrayEncoding{format: "ascii"}}
	lower := f.dataArray("s", "Float32", 1, nil, []string{"1", "2", "3", "4"})
	upper := f.dataArray("s", "Float32", 1, nil, []string{"5", "6", "7", "8"})
	data := f.file("ImageData", `<ImageData WholeExtent="0 1 0 1 0 1" Origin="0 0 0" Spacing="1 1 1">
    <Piece Extent="0 1 0 1 1 1"><PointData Scalars="s">`+upper+`</PointData></Piece>
    <Piece Extent="0 1 0 1 0 0"><PointData Scalars="s">`+lower+`</PointData></Piece>
  </ImageData>`)

	vol, err := DecodeVolume("", data)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, vol.Scalars)
}

func TestDecodeVTIMultiComponentKeepsFirst(t *testing.T) {
	f := &vtkFixture{enc: vtkArrayEncoding{format: "ascii"}}
	arr := f.dataArray("rgb", "UInt8", 3, nil, []string{"10", "0", "0", "20", "0", "0"})
	data := f.file("ImageData", `<ImageData WholeExtent="0 1 0 0 0 0"><Piece><PointData>`+arr+`</PointData></Piece></ImageData>`)

	vol, err := DecodeVolume("vti", data)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20}, vol.Scalars)
	assert.Equal(t, [3]float32{1, 1, 1}, vol.Spacing)
}

func TestDecodeVTIErrors(t *testing.T) {
	good, _ := buildVTI(vtkArrayEncoding{format: "binary"})

	cases := map[string][]byte{
		"not xml":          []byte("\x00\x01garbage"),
		"wrong dataset":    []byte(`<VTKFile type="PolyData"><PolyData/></VTKFile>`),
		"bad extent":       []byte(`<VTKFile type="ImageData"><ImageData WholeExtent="0 1"><Piece/></ImageData></VTKFile>`),
		"no scalars":       []byte(`<VTKFile type="ImageData"><ImageData WholeExtent="0 0 0 0 0 0"><Piece><PointData/></Piece></ImageData></VTKFile>`),
		"count mismatch":   bytes.ReplaceAll(good, []byte(`"0 2 0 1 0 1"`), []byte(`"0 3 0 1 0 1"`)),
		"bad compressor":   bytes.Replace(good, []byte(`header_type="UInt32"`), []byte(`header_type="UInt32" compressor="vtkLZ4DataCompressor"`), 1),
		"unknown type":     bytes.Replace(good, []byte(`type="Int16"`), []byte(`type="Float16"`), 1),
		"truncated binary": bytes.Replace(good, []byte(`format="binary">`), []byte(`format="binary">AAAA`), 1),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeVolume("vti", data)
			require.Error(t, err)
			var de *DecodeError
			assert.True(t, errors.As(err, &de), "expected DecodeError, got %T: %v", err, err)
		})
	}
}

// binaryArrayVTI wraps a hand-built binary DataArray payload in an ImageData file.
func binaryArrayVTI(header string, compressed bool, payload []byte) []byte {
	compressor := ""
	if compressed {
		compressor = ` compressor="vtkZLibDataCompressor"`
	}
	return []byte(fmt.Sprintf(`<VTKFile type="ImageData" byte_order="LittleEndian" header_type="%s"%s>
  <ImageData WholeExtent="0 1 0 0 0 0"><Piece><PointData>
    <DataArray type="Float32" Name="s" format="binary">%s</DataArray>
  </PointData></Piece></ImageData>
</VTKFile>`, header, compressor, base64.StdEncoding.EncodeToString(payload)))
}

func TestDecodeVTIRejectsOversizedHeaderCounts(t *testing.T) {
	var huge bytes.Buffer
	putHeaderUint(&huge, 1<<63+8, true)
	huge.Write(float32Bytes([]float32{1, 2}))

	var hugeBlock bytes.Buffer
	putHeaderUint(&hugeBlock, 1, true)
	putHeaderUint(&hugeBlock, 1<<62, true)
	putHeaderUint(&hugeBlock, 0, true)
	putHeaderUint(&hugeBlock, 4, true)
	hugeBlock.Write([]byte{0, 0, 0, 0})

	var negativeBlocks bytes.Buffer
	putHeaderUint(&negativeBlocks, 1<<64-1, true)

	cases := map[string][]byte{
		"byte count past int range":  binaryArrayVTI("UInt64", false, huge.Bytes()),
		"block size past array cap":  binaryArrayVTI("UInt64", true, hugeBlock.Bytes()),
		"block count past int range": binaryArrayVTI("UInt64", true, negativeBlocks.Bytes()),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = DecodeVolume("vti", data) })
			var de *DecodeError
			assert.True(t, errors.As(err, &de), "expected DecodeError, got %T: %v", err, err)
		})
	}
}

func TestDecodeVTIRejectsOverstatedBlockSize(t *testing.T) {
	h, d := vtkBinary(float32Bytes([]float32{1, 2}), vtkArrayEncoding{compressed: true, blockSize: 8})
	// the single block holds 8 bytes; the header claims 4
	h[4], h[8] = 4, 4

	_, err := DecodeVolume("vti", binaryArrayVTI("UInt32", true, append(h, d...)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 4")
}

func TestDecodeVTIRejectsHugeWholeExtent(t *testing.T) {
	f := &vtkFixture{enc: vtkArrayEncoding{format: "ascii"}}
	piece := f.dataArray("s", "Float32", 1, nil, []string{"1", "2"})

	cases := map[string]string{
		"past voxel cap":      `WholeExtent="0 99999 0 99999 0 99999"`,
		"pieces under extent": `WholeExtent="0 511 0 511 0 511"`,
	}
	for name, extent := range cases {
		t.Run(name, func(t *testing.T) {
			data := f.file("ImageData", `<ImageData `+extent+`>
    <Piece Extent="0 1 0 0 0 0"><PointData>`+piece+`</PointData></Piece>
    <Piece Extent="0 1 1 1 0 0"><PointData>`+piece+`</PointData></Piece>
  </ImageData>`)
			_, err := DecodeVolume("vti", data)
			require.Error(t, err)
			var de *DecodeError
			assert.True(t, errors.As(err, &de), "expected DecodeError, got %T: %v", err, err)
		})
	}
}

func TestDecodeVTPRejectsUnterminatedAppendedEncoding(t *testing.T) {
	data := []byte(`<VTKFile type="PolyData"><PolyData/><AppendedData encoding="raw>_abc</AppendedData></VTKFile>`)
	var err error
	require.NotPanics(t, func() { _, err = DecodeMesh("vtp", data) })
	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected DecodeError, got %T: %v", err, err)
	assert.Contains(t, de.Reason, "unterminated")
}

func TestUnsupportedVolumeFormat(t *testing.T) {
	_, err := DecodeVolume("nrrd", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, `Unsupported volume format "nrrd". Expected .vti`, err.Error())

	_, err = DecodeMesh("obj", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, `Unsupported mesh format "obj". Expected .vtp or .stl`, err.Error())
}

func TestDecodeVTP(t *testing.T) {
	for name, enc := range map[string]vtkArrayEncoding{
		"ascii":         {format: "ascii"},
		"binary zlib":   {format: "binary", compressed: true},
		"appended raw":  {format: "appended", header64: true},
		"appended b64z": {format: "appended", base64: true, compressed: true, blockSize: 16},
	} {
		t.Run(name, func(t *testing.T) {
			mesh, err := DecodeMesh("vtp", buildVTP(enc))
			require.NoError(t, err)
			assert.Equal(t, 6, mesh.VertexCount())
			assert.Equal(t, 4, mesh.TriangleCount())
			assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3, 4, 5, 0, 0, 5, 1}, mesh.Indices)
			require.Len(t, mesh.Normals, 18)
			assert.Equal(t, float32(1), mesh.Normals[2])
			assert.Equal(t, model.Bounds{0, 1, 0, 1, 0, 1}, mesh.Bounds())
		})
	}
}

func TestDecodeVTPRejectsOutOfRangeConnectivity(t *testing.T) {
	f := &vtkFixture{enc: vtkArrayEncoding{format: "ascii"}}
	data := f.file("PolyData", `<PolyData><Piece NumberOfPoints="3" NumberOfPolys="1">
      <Points>`+f.dataArray("Points", "Float32", 3, nil, []string{"0", "0", "0", "1", "0", "0", "0", "1", "0"})+`</Points>
      <Polys>`+f.dataArray("connectivity", "Int32", 1, nil, []string{"0", "1", "7"})+
		f.dataArray("offsets", "Int32", 1, nil, []string{"3"})+`</Polys>
    </Piece></PolyData>`)

	_, err := DecodeMesh("vtp", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references point 7")
}

func TestSTLRoundTrip(t *testing.T) {
	src, err := DecodeMesh("vtp", buildVTP(vtkArrayEncoding{format: "ascii"}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeSTL(&buf, src, "Liver"))
	assert.Equal(t, 84+50*src.TriangleCount(), buf.Len())

	mesh, err := DecodeMesh("stl", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Liver", mesh.Name)
	assert.Equal(t, src.TriangleCount(), mesh.TriangleCount())
	assert.Equal(t, src.Bounds(), mesh.Bounds())
}

func TestDecodeASCIISTL(t *testing.T) {
	data := strings.Join([]string{
		"solid tumour",
		"  facet normal 0 0 1",
		"    outer loop",
		"      vertex 0 0 0",
		"      vertex 1 0 0",
		"      vertex 0 1 0",
		"    endloop",
		"  endfacet",
		"endsolid tumour",
	}, "\n")
	mesh, err := DecodeMesh("stl", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, "tumour", mesh.Name)
	assert.Equal(t, 1, mesh.TriangleCount())
	assert.InDelta(t, 1, mesh.Normals[2], 1e-6)

	_, err = DecodeMesh("stl", []byte("solid empty\nendsolid empty\n"))
	assert.Error(t, err)
}

func TestFormatFromURL(t *testing.T) {
	assert.Equal(t, "vtp", FormatFromURL("https://cdn/x/Liver.VTP?sig=1#a"))
	assert.Equal(t, "stl", FormatFromURL("s3://b/k/tumour.stl"))
	assert.Equal(t, "vti", FormatFromURL("cases/ct_volume.vti"))
	assert.Equal(t, "", FormatFromURL("https://cdn/x/mesh"))
}
