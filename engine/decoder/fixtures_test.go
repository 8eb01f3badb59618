package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// vtkArrayEncoding describes how a fixture array is written.
type vtkArrayEncoding struct {
	format     string // ascii, binary or appended
	base64     bool   // appended base64 instead of raw
	compressed bool
	header64   bool
	blockSize  int
}

func putHeaderUint(buf *bytes.Buffer, v uint64, h64 bool) {
	if h64 {
		binary.Write(buf, binary.LittleEndian, v)
		return
	}
	binary.Write(buf, binary.LittleEndian, uint32(v))
}

// vtkBinary lays raw out as VTK does: the header and data returned separately.
func vtkBinary(raw []byte, enc vtkArrayEncoding) ([]byte, []byte) {
	var header, data bytes.Buffer
	if !enc.compressed {
		putHeaderUint(&header, uint64(len(raw)), enc.header64)
		data.Write(raw)
		return header.Bytes(), data.Bytes()
	}

	bs := enc.blockSize
	if bs <= 0 {
		bs = 1 << 15
	}
	var sizes []uint64
	last := 0
	for off := 0; off < len(raw); off += bs {
		end := min(off+bs, len(raw))
		var block bytes.Buffer
		zw := zlib.NewWriter(&block)
		zw.Write(raw[off:end])
		zw.Close()
		sizes = append(sizes, uint64(block.Len()))
		data.Write(block.Bytes())
		last = end - off
	}
	putHeaderUint(&header, uint64(len(sizes)), enc.header64)
	putHeaderUint(&header, uint64(bs), enc.header64)
	putHeaderUint(&header, uint64(last), enc.header64)
	for _, s := range sizes {
		putHeaderUint(&header, s, enc.header64)
	}
	return header.Bytes(), data.Bytes()
}

// vtkFixture accumulates DataArray elements and the appended payload of one file.
type vtkFixture struct {
	enc      vtkArrayEncoding
	appended bytes.Buffer
}

func (f *vtkFixture) dataArray(name, typ string, comps int, raw []byte, asciiValues []string) string {
	attrs := fmt.Sprintf(`type="%s" Name="%s" NumberOfComponents="%d"`, typ, name, comps)
	switch f.enc.format {
	case "ascii":
		return fmt.Sprintf(`<DataArray %s format="ascii">%s</DataArray>`, attrs, strings.Join(asciiValues, " "))
	case "binary":
		h, d := vtkBinary(raw, f.enc)
		text := base64.StdEncoding.EncodeToString(h) + base64.StdEncoding.EncodeToString(d)
		return fmt.Sprintf(`<DataArray %s format="binary">
          %s
        </DataArray>`, attrs, text)
	default:
		offset := f.appended.Len()
		h, d := vtkBinary(raw, f.enc)
		if f.enc.base64 {
			f.appended.WriteString(base64.StdEncoding.EncodeToString(h))
			f.appended.WriteString(base64.StdEncoding.EncodeToString(d))
		} else {
			f.appended.Write(h)
			f.appended.Write(d)
		}
		return fmt.Sprintf(`<DataArray %s format="appended" offset="%d"/>`, attrs, offset)
	}
}

func (f *vtkFixture) file(kind, body string) []byte {
	var out bytes.Buffer
	header := "UInt32"
	if f.enc.header64 {
		header = "UInt64"
	}
	compressor := ""
	if f.enc.compressed {
		compressor = ` compressor="vtkZLibDataCompressor"`
	}
	fmt.Fprintf(&out, `<?xml version="1.0"?>
<VTKFile type="%s" version="1.0" byte_order="LittleEndian" header_type="%s"%s>
%s
`, kind, header, compressor, body)
	if f.enc.format == "appended" {
		encoding := "raw"
		if f.enc.base64 {
			encoding = "base64"
		}
		fmt.Fprintf(&out, "  <AppendedData encoding=\"%s\">\n   _", encoding)
		out.Write(f.appended.Bytes())
		out.WriteString("\n  </AppendedData>\n")
	}
	out.WriteString("</VTKFile>\n")
	return out.Bytes()
}

func float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func int16Bytes(values []int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func int64Bytes(values []int64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func formatValues[T any](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out
}

// buildVTI writes an ImageData file with extent 0..2 x 0..1 x 0..1 and Int16 scalars 0..11 shifted by -5.
func buildVTI(enc vtkArrayEncoding) ([]byte, []int16) {
	values := make([]int16, 12)
	for i := range values {
		values[i] = int16(i - 5)
	}
	f := &vtkFixture{enc: enc}
	arr := f.dataArray("ImageScalars", "Int16", 1, int16Bytes(values), formatValues(values))
	body := fmt.Sprintf(`  <ImageData WholeExtent="0 2 0 1 0 1" Origin="-1 0 2.5" Spacing="0.5 1 2" Direction="1 0 0 0 1 0 0 0 1">
    <Piece Extent="0 2 0 1 0 1">
      <PointData Scalars="ImageScalars">
        %s
      </PointData>
      <CellData>
      </CellData>
    </Piece>
  </ImageData>`, arr)
	return f.file("ImageData", body), values
}

// buildVTP writes a PolyData file with a quad (two triangles), one triangle strip of two triangles and point normals.
func buildVTP(enc vtkArrayEncoding) []byte {
	points := []float32{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
		0, 0, 1,
		1, 0, 1,
	}
	normals := make([]float32, len(points))
	for i := 2; i < len(normals); i += 3 {
		normals[i] = 1
	}
	polyConn := []int64{0, 1, 2, 3}
	polyOff := []int64{4}
	stripConn := []int64{4, 5, 0, 1}
	stripOff := []int64{4}

	f := &vtkFixture{enc: enc}
	body := fmt.Sprintf(`  <PolyData>
    <Piece NumberOfPoints="6" NumberOfVerts="0" NumberOfLines="0" NumberOfStrips="1" NumberOfPolys="1">
      <PointData Normals="Normals">
        %s
      </PointData>
      <Points>
        %s
      </Points>
      <Strips>
        %s
        %s
      </Strips>
      <Polys>
        %s
        %s
      </Polys>
    </Piece>
  </PolyData>`,
		f.dataArray("Normals", "Float32", 3, float32Bytes(normals), formatValues(normals)),
		f.dataArray("Points", "Float32", 3, float32Bytes(points), formatValues(points)),
		f.dataArray("connectivity", "Int64", 1, int64Bytes(stripConn), formatValues(stripConn)),
		f.dataArray("offsets", "Int64", 1, int64Bytes(stripOff), formatValues(stripOff)),
		f.dataArray("connectivity", "Int64", 1, int64Bytes(polyConn), formatValues(polyConn)),
		f.dataArray("offsets", "Int64", 1, int64Bytes(polyOff), formatValues(polyOff)),
	)
	return f.file("PolyData", body)
}
