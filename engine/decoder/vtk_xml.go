package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/klauspost/compress/zlib"
)

type vtkFile struct {
	XMLName    xml.Name      `xml:"VTKFile"`
	Type       string        `xml:"type,attr"`
	ByteOrder  string        `xml:"byte_order,attr"`
	HeaderType string        `xml:"header_type,attr"`
	Compressor string        `xml:"compressor,attr"`
	ImageData  *vtkImageData `xml:"ImageData"`
	PolyData   *vtkPolyData  `xml:"PolyData"`
}

type vtkImageData struct {
	WholeExtent string     `xml:"WholeExtent,attr"`
	Origin      string     `xml:"Origin,attr"`
	Spacing     string     `xml:"Spacing,attr"`
	Pieces      []vtkPiece `xml:"Piece"`
}

type vtkPolyData struct {
	Pieces []vtkPiece `xml:"Piece"`
}

type vtkPiece struct {
	Extent         string           `xml:"Extent,attr"`
	NumberOfPoints int              `xml:"NumberOfPoints,attr"`
	NumberOfPolys  int              `xml:"NumberOfPolys,attr"`
	NumberOfStrips int              `xml:"NumberOfStrips,attr"`
	PointData      vtkAttributeData `xml:"PointData"`
	Points         vtkArrayGroup    `xml:"Points"`
	Polys          vtkArrayGroup    `xml:"Polys"`
	Strips         vtkArrayGroup    `xml:"Strips"`
}

type vtkAttributeData struct {
	Scalars string         `xml:"Scalars,attr"`
	Normals string         `xml:"Normals,attr"`
	Arrays  []vtkDataArray `xml:"DataArray"`
}

type vtkArrayGroup struct {
	Arrays []vtkDataArray `xml:"DataArray"`
}

func (g vtkArrayGroup) named(name string) *vtkDataArray {
	for i := range g.Arrays {
		if g.Arrays[i].Name == name {
			return &g.Arrays[i]
		}
	}
	return nil
}

type vtkDataArray struct {
	Type               string `xml:"type,attr"`
	Name               string `xml:"Name,attr"`
	Format             string `xml:"format,attr"`
	NumberOfComponents int    `xml:"NumberOfComponents,attr"`
	Offset             int64  `xml:"offset,attr"`
	Text               string `xml:",chardata"`
}

func (a *vtkDataArray) components() int {
	if a.NumberOfComponents <= 0 {
		return 1
	}
	return a.NumberOfComponents
}

// vtkDocument is a parsed VTK XML file with its appended payload split off.
type vtkDocument struct {
	file             vtkFile
	order            binary.ByteOrder
	headerSize       int
	compressed       bool
	appended         []byte
	appendedEncoding string
	format           string
}

// parseVTKDocument parses the XML structure. The AppendedData section may hold raw bytes that
// are not valid XML, so it is cut out before parsing and kept aside.
func parseVTKDocument(format string, data []byte) (*vtkDocument, error) {
	doc := &vtkDocument{format: format}

	xmlPart := data
	if start := bytes.Index(data, []byte("<AppendedData")); start >= 0 {
		tagEnd := bytes.IndexByte(data[start:], '>')
		if tagEnd < 0 {
			return nil, &DecodeError{Format: format, Reason: "unterminated AppendedData tag"}
		}
		tag := string(data[start : start+tagEnd])
		doc.appendedEncoding = "raw"
		if i := strings.Index(tag, `encoding="`); i >= 0 {
			rest := tag[i+len(`encoding="`):]
			end := strings.IndexByte(rest, '"')
			if end < 0 {
				return nil, &DecodeError{Format: format, Reason: "unterminated AppendedData encoding attribute"}
			}
			doc.appendedEncoding = rest[:end]
		}

		body := data[start+tagEnd+1:]
		marker := bytes.IndexByte(body, '_')
		if marker < 0 {
			return nil, &DecodeError{Format: format, Reason: "AppendedData is missing the '_' marker"}
		}
		payload := body[marker+1:]
		if end := bytes.LastIndex(payload, []byte("</AppendedData>")); end >= 0 {
			payload = payload[:end]
		}
		if doc.appendedEncoding != "raw" {
			payload = bytes.TrimRightFunc(payload, unicode.IsSpace)
		}
		doc.appended = payload

		xmlPart = append(append([]byte{}, data[:start]...), []byte("</VTKFile>")...)
	}

	if err := xml.Unmarshal(xmlPart, &doc.file); err != nil {
		return nil, &DecodeError{Format: format, Reason: "invalid VTK XML", Err: err}
	}

	switch doc.file.ByteOrder {
	case "", "LittleEndian":
		doc.order = binary.LittleEndian
	case "BigEndian":
		doc.order = binary.BigEndian
	default:
		return nil, &DecodeError{Format: format, Reason: fmt.Sprintf("unknown byte order %q", doc.file.ByteOrder)}
	}

	switch doc.file.HeaderType {
	case "", "UInt32":
		doc.headerSize = 4
	case "UInt64":
		doc.headerSize = 8
	default:
		return nil, &DecodeError{Format: format, Reason: fmt.Sprintf("unknown header type %q", doc.file.HeaderType)}
	}

	switch doc.file.Compressor {
	case "":
	case "vtkZLibDataCompressor":
		doc.compressed = true
	default:
		return nil, &DecodeError{Format: format, Reason: fmt.Sprintf("unsupported compressor %q", doc.file.Compressor)}
	}
	return doc, nil
}

// maxArrayBytes bounds every byte count read from a binary array header.
const maxArrayBytes = 4 << 30

// readHeaderUint reads the i-th header integer from a header byte slice.
func (d *vtkDocument) readHeaderUint(h []byte, i int) uint64 {
	if d.headerSize == 8 {
		return d.order.Uint64(h[i*8:])
	}
	return uint64(d.order.Uint32(h[i*4:]))
}

// readHeaderSize reads the i-th header integer as a byte or block count, rejecting values that
// exceed maxArrayBytes or do not fit an int.
func (d *vtkDocument) readHeaderSize(h []byte, i int) (int, error) {
	v := d.readHeaderUint(h, i)
	if v > maxArrayBytes {
		return 0, fmt.Errorf("header value %d exceeds %d", v, uint64(maxArrayBytes))
	}
	return int(v), nil
}

// arrayBytes returns the raw, decompressed bytes of a binary or appended array.
func (d *vtkDocument) arrayBytes(a *vtkDataArray) ([]byte, error) {
	var header func(n int) ([]byte, error)
	var payload func(headerLen, n int) ([]byte, error)

	switch a.Format {
	case "binary":
		decoded, err := decodeBase64Stream(a.Text)
		if err != nil {
			return nil, &DecodeError{Format: d.format, Reason: "invalid base64 in " + a.Name, Err: err}
		}
		header = func(n int) ([]byte, error) { return sliceAt(decoded, 0, n) }
		payload = func(h, n int) ([]byte, error) { return sliceAt(decoded, h, n) }

	case "appended":
		if d.appended == nil {
			return nil, &DecodeError{Format: d.format, Reason: "array " + a.Name + " is appended but the file has no AppendedData"}
		}
		src := d.appended
		off := int(a.Offset)
		if off < 0 || off > len(src) {
			return nil, &DecodeError{Format: d.format, Reason: fmt.Sprintf("array %s offset %d out of range", a.Name, off)}
		}
		if d.appendedEncoding == "base64" {
			text := string(src[off:])
			chars := func(n int) int { return (n + 2) / 3 * 4 }
			header = func(n int) ([]byte, error) {
				if chars(n) > len(text) {
					return nil, io.ErrUnexpectedEOF
				}
				b, err := base64.StdEncoding.DecodeString(text[:chars(n)])
				if err != nil {
					return nil, err
				}
				return sliceAt(b, 0, n)
			}
			payload = func(h, n int) ([]byte, error) {
				start := chars(h)
				if start+chars(n) > len(text) {
					return nil, io.ErrUnexpectedEOF
				}
				b, err := base64.StdEncoding.DecodeString(text[start : start+chars(n)])
				if err != nil {
					return nil, err
				}
				return sliceAt(b, 0, n)
			}
		} else {
			header = func(n int) ([]byte, error) { return sliceAt(src, off, n) }
			payload = func(h, n int) ([]byte, error) { return sliceAt(src, off+h, n) }
		}

	default:
		return nil, &DecodeError{Format: d.format, Reason: fmt.Sprintf("array %s has unsupported format %q", a.Name, a.Format)}
	}

	out, err := d.readBlocks(header, payload)
	if err != nil {
		return nil, &DecodeError{Format: d.format, Reason: "reading array " + a.Name, Err: err}
	}
	return out, nil
}

// readBlocks applies the VTK binary layout: an uncompressed array is [byteCount][bytes]; a
// compressed one is [nBlocks][blockSize][lastBlockSize][compressedSize...][blocks...].
func (d *vtkDocument) readBlocks(header func(int) ([]byte, error), payload func(int, int) ([]byte, error)) ([]byte, error) {
	hs := d.headerSize
	if !d.compressed {
		h, err := header(hs)
		if err != nil {
			return nil, err
		}
		n, err := d.readHeaderSize(h, 0)
		if err != nil {
			return nil, err
		}
		return payload(hs, n)
	}

	h, err := header(hs)
	if err != nil {
		return nil, err
	}
	nBlocks, err := d.readHeaderSize(h, 0)
	if err != nil {
		return nil, err
	}
	if nBlocks == 0 {
		return []byte{}, nil
	}
	headerLen := (3 + nBlocks) * hs
	h, err = header(headerLen)
	if err != nil {
		return nil, err
	}
	blockSize, err := d.readHeaderSize(h, 1)
	if err != nil {
		return nil, err
	}
	lastSize, err := d.readHeaderSize(h, 2)
	if err != nil {
		return nil, err
	}
	if lastSize == 0 {
		lastSize = blockSize
	}
	if int64(blockSize)*int64(nBlocks-1)+int64(lastSize) > maxArrayBytes {
		return nil, fmt.Errorf("%d blocks of %d bytes exceed %d", nBlocks, blockSize, maxArrayBytes)
	}

	total := 0
	sizes := make([]int, nBlocks)
	for i := range sizes {
		if sizes[i], err = d.readHeaderSize(h, 3+i); err != nil {
			return nil, err
		}
		total += sizes[i]
	}
	compressed, err := payload(headerLen, total)
	if err != nil {
		return nil, err
	}

	// capacity follows the bytes present rather than the sizes the header claims
	out := make([]byte, 0, len(compressed))
	pos := 0
	for i, size := range sizes {
		want := blockSize
		if i == nBlocks-1 {
			want = lastSize
		}
		zr, err := zlib.NewReader(bytes.NewReader(compressed[pos : pos+size]))
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		block, err := io.ReadAll(io.LimitReader(zr, int64(want)+1))
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if len(block) != want {
			return nil, fmt.Errorf("block %d inflated to at least %d bytes, expected %d", i, len(block), want)
		}
		out = append(out, block...)
		pos += size
	}
	return out, nil
}

// decodeArray decodes an array into T, whatever its storage format.
func decodeArray[T float32 | int64](d *vtkDocument, a *vtkDataArray) ([]T, error) {
	size := typeSize(a.Type)
	if size == 0 {
		return nil, &DecodeError{Format: d.format, Reason: fmt.Sprintf("array %s has unsupported type %q", a.Name, a.Type)}
	}

	if a.Format == "ascii" {
		fields := strings.Fields(a.Text)
		out := make([]T, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &DecodeError{Format: d.format, Reason: "invalid ascii value in " + a.Name, Err: err}
			}
			out[i] = T(v)
		}
		return out, nil
	}

	raw, err := d.arrayBytes(a)
	if err != nil {
		return nil, err
	}
	if len(raw)%size != 0 {
		return nil, &DecodeError{Format: d.format, Reason: fmt.Sprintf("array %s has %d bytes, not a multiple of %d", a.Name, len(raw), size)}
	}
	return convertRaw[T](raw, a.Type, d.order), nil
}

func typeSize(t string) int {
	switch t {
	case "Int8", "UInt8":
		return 1
	case "Int16", "UInt16":
		return 2
	case "Int32", "UInt32", "Float32":
		return 4
	case "Int64", "UInt64", "Float64":
		return 8
	default:
		return 0
	}
}

func convertRaw[T float32 | int64](raw []byte, typ string, order binary.ByteOrder) []T {
	n := len(raw) / typeSize(typ)
	out := make([]T, n)
	switch typ {
	case "Int8":
		for i := range out {
			out[i] = T(int8(raw[i]))
		}
	case "UInt8":
		for i := range out {
			out[i] = T(raw[i])
		}
	case "Int16":
		for i := range out {
			out[i] = T(int16(order.Uint16(raw[i*2:])))
		}
	case "UInt16":
		for i := range out {
			out[i] = T(order.Uint16(raw[i*2:]))
		}
	case "Int32":
		for i := range out {
			out[i] = T(int32(order.Uint32(raw[i*4:])))
		}
	case "UInt32":
		for i := range out {
			out[i] = T(order.Uint32(raw[i*4:]))
		}
	case "Int64":
		for i := range out {
			out[i] = T(int64(order.Uint64(raw[i*8:])))
		}
	case "UInt64":
		for i := range out {
			out[i] = T(order.Uint64(raw[i*8:]))
		}
	case "Float32":
		for i := range out {
			out[i] = T(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case "Float64":
		for i := range out {
			out[i] = T(math.Float64frombits(order.Uint64(raw[i*8:])))
		}
	}
	return out
}

// decodeBase64Stream decodes base64 text made of one or more independently padded segments,
// which is how VTK writes a header and its data back to back.
func decodeBase64Stream(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	out := make([]byte, 0, len(s)*3/4)
	for len(s) > 0 {
		end := len(s)
		if i := strings.IndexByte(s, '='); i >= 0 {
			end = min((i/4+1)*4, len(s))
		}
		chunk, err := base64.StdEncoding.DecodeString(s[:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		s = s[end:]
	}
	return out, nil
}

func sliceAt(b []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, io.ErrUnexpectedEOF
	}
	return b[off : off+n], nil
}

func parseInts(s string, want int) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d integers, got %q", want, s)
	}
	out := make([]int, want)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats3(s string, def [3]float32) ([3]float32, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return def, fmt.Errorf("expected 3 numbers, got %q", s)
	}
	var out [3]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return def, err
		}
		out[i] = float32(v)
	}
	return out, nil
}
