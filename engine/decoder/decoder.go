// Package decoder turns fetched bytes into volumes and surface meshes.
// Volumes are read from VTK XML ImageData (.vti); meshes from VTK XML PolyData (.vtp) and STL.
package decoder

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// ErrUnsupportedFormat is matched by every UnsupportedFormatError through errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError reports a format no decoder exists for.
type UnsupportedFormatError struct {
	// Kind is "volume" or "mesh".
	Kind     string
	Format   string
	Expected string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("Unsupported %s format %q. Expected %s", e.Kind, e.Format, e.Expected)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// DecodeError reports bytes that could not be interpreted as the declared format.
type DecodeError struct {
	Format string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// VolumeDecoder parses one volume container format.
type VolumeDecoder interface {
	// Decode parses a complete file.
	//
	// Parameters:
	//   - data: the file contents
	//
	// Returns:
	//   - *model.Volume: the decoded volume with range and statistics filled in
	//   - error: a *DecodeError if the contents are malformed
	Decode(data []byte) (*model.Volume, error)
}

// MeshDecoder parses one surface mesh format.
type MeshDecoder interface {
	// Decode parses a complete file.
	//
	// Parameters:
	//   - data: the file contents
	//
	// Returns:
	//   - *model.Mesh: the triangulated mesh with normals
	//   - error: a *DecodeError if the contents are malformed
	Decode(data []byte) (*model.Mesh, error)
}

// NewVolumeDecoder returns the decoder for format. Only "vti" is supported; blank means vti.
//
// Parameters:
//   - format: the descriptor format
//
// Returns:
//   - VolumeDecoder: the decoder
//   - error: an *UnsupportedFormatError for any other format
func NewVolumeDecoder(format string) (VolumeDecoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "vti":
		return &vtiDecoder{}, nil
	default:
		return nil, &UnsupportedFormatError{Kind: "volume", Format: format, Expected: ".vti"}
	}
}

// NewMeshDecoder returns the decoder for format, "vtp" or "stl".
func NewMeshDecoder(format string) (MeshDecoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "vtp":
		return &vtpDecoder{}, nil
	case "stl":
		return &stlDecoder{}, nil
	default:
		return nil, &UnsupportedFormatError{Kind: "mesh", Format: format, Expected: ".vtp or .stl"}
	}
}

// DecodeVolume decodes data with the decoder for format.
func DecodeVolume(format string, data []byte) (*model.Volume, error) {
	d, err := NewVolumeDecoder(format)
	if err != nil {
		return nil, err
	}
	return d.Decode(data)
}

// DecodeMesh decodes data with the decoder for format.
func DecodeMesh(format string, data []byte) (*model.Mesh, error) {
	d, err := NewMeshDecoder(format)
	if err != nil {
		return nil, err
	}
	return d.Decode(data)
}

// FormatFromURL returns the lower-case file extension of the URL path without the dot,
// ignoring query and fragment.
func FormatFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}
