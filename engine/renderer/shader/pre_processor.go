// pre_processor.go implements the WGSL shader pre-processor. It replaces @oxy: annotations
// with registered struct sources or generated binding declarations and collects the
// declarations so pipeline layouts can be derived from the shader itself.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
)

// RegistryEntry pairs a WGSL struct source with its type name and byte size.
type RegistryEntry struct {
	// Source is the raw WGSL struct definition text injected by @oxy:include.
	Source string
	// Type is the WGSL type name emitted in @oxy:group declarations.
	Type string
	// Size is the struct size in bytes, used as the binding's minimum size.
	Size uint64
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry map[AnnotationArg]RegistryEntry

	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group annotations during a Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations.
type PreProcessor interface {
	// Process replaces @oxy:include annotations with struct sources and @oxy:group annotations
	// with @group/@binding declarations. The declarations list is reset at the start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the group annotations collected during the most recent Process call, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// Entry returns the registry entry for a struct type key.
	//
	// Parameters:
	//   - arg: the struct type key
	//
	// Returns:
	//   - RegistryEntry: the entry
	//   - bool: true if the key is registered
	Entry(arg AnnotationArg) (RegistryEntry, bool)
}

var _ PreProcessor = &preProcessor{}

// PreProcessorOption is a functional option used to configure a PreProcessor.
type PreProcessorOption func(*preProcessor)

// WithStruct registers an additional struct type.
//
// Parameters:
//   - arg: the key used in annotations
//   - entry: the struct source, type name and size
//
// Returns:
//   - PreProcessorOption: a function that registers the struct
func WithStruct(arg AnnotationArg, entry RegistryEntry) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[arg] = entry
	}
}

// NewPreProcessor creates a PreProcessor with the camera uniform registered.
//
// Parameters:
//   - options: additional struct registrations
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(options ...PreProcessorOption) PreProcessor {
	var cu camera.GPUCameraUniform
	p := &preProcessor{
		structRegistry: map[AnnotationArg]RegistryEntry{
			AnnotationArgCamera: {Source: camera.GPUCameraUniformSource, Type: "CameraUniform", Size: uint64(cu.Size())},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform: "var<uniform>",
			annotationArgStorageTypeRead:    "var<storage, read>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Entry(arg AnnotationArg) (RegistryEntry, bool) {
	e, ok := p.structRegistry[arg]
	return e, ok
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			// a struct may only be declared once per module
			if !included[a.Args[0]] {
				out = append(out, entry.Source)
				included[a.Args[0]] = true
			}
		case AnnotationTypeBindingGroup:
			entry, ok := p.structRegistry[a.Args[2]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", i+1, a.Args[2])
			}
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, a.Args[1], entry.Type))
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
