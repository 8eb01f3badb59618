package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"gopkg.in/yaml.v3"
)

// staticFile is the on-disk shape of a static catalog.
type staticFile struct {
	Cases []Case `yaml:"cases" toml:"cases"`
}

// staticCatalogBackend reads cases from a YAML or TOML file.
type staticCatalogBackend struct {
	path     string
	resolver AssetResolver
}

func newStaticCatalogBackend(path string, resolver AssetResolver) *staticCatalogBackend {
	return &staticCatalogBackend{path: path, resolver: resolver}
}

func (b *staticCatalogBackend) List(ctx context.Context) ([]Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}
	cases, err := ParseStatic(b.path, data)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cases))
	for i := range cases {
		cases[i] = normalizeCase(cases[i], b.resolver)
		if seen[cases[i].ID] {
			return nil, fmt.Errorf("duplicate case id %q in %s", cases[i].ID, b.path)
		}
		seen[cases[i].ID] = true
	}
	return cases, nil
}

// ParseStatic decodes a static catalog, choosing TOML for a .toml name and YAML otherwise.
//
// Parameters:
//   - name: the file name, used only for its extension
//   - data: the file contents
//
// Returns:
//   - []Case: the cases as written, without URL resolution
//   - error: a parse error
func ParseStatic(name string, data []byte) ([]Case, error) {
	var f staticFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
			return nil, fmt.Errorf("error parsing catalog %s: %w", name, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("error parsing catalog %s: %w", name, err)
		}
	}
	for i, c := range f.Cases {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("catalog %s: case %d has no id", name, i)
		}
	}
	return f.Cases, nil
}

// normalizeCase fills defaults and resolves every asset path of c.
func normalizeCase(c Case, resolver AssetResolver) Case {
	if c.Label == "" {
		c.Label = common.TitleCase(c.ID)
	}
	if c.Focus == "" {
		c.Focus = DefaultFocus
	}
	if c.Volume != nil {
		v := c.Volume.Normalized()
		v.URL = resolver.Resolve(v.URL)
		c.Volume = &v
		if v.Empty() {
			c.Volume = nil
		}
	}
	structures := make([]model.Structure, len(c.Structures))
	for i, s := range c.Structures {
		s.MeshURL = resolver.Resolve(s.MeshURL)
		fileName := fmt.Sprintf("structure-%d", i+1)
		if s.MeshURL != "" {
			fileName = path.Base(s.MeshURL)
		}
		if s.ID == "" {
			s.ID = StructureID(c.ID, fileName)
		}
		if s.Name == "" {
			s.Name = common.TitleCase(fileName)
		}
		if s.Color == "" {
			s.Color = Palette[i%len(Palette)]
		}
		structures[i] = s
	}
	c.Structures = structures
	return c
}
