// Package catalog lists the cases a learner can open: each case names a volume, a set of
// segmented structures and some descriptive metadata. Cases come from a static YAML/TOML file
// or are discovered from the folder layout of an S3 bucket.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/engine/config"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// ErrCaseNotFound is returned by Case for an unknown id.
var ErrCaseNotFound = errors.New("case not found")

// Palette colors structures that do not name their own color, in order.
var Palette = []string{"#f94144", "#277da1", "#f9c74f", "#90be6d", "#577590", "#f3722c", "#4d908e"}

// DefaultFocus labels a case without a focus of its own.
const DefaultFocus = "HPB imaging review"

var structureIDPattern = regexp.MustCompile(`[^\w-]+`)

// StructureID builds the id of a discovered structure from its case key and mesh file name.
//
// Parameters:
//   - caseKey: the case folder
//   - fileName: the mesh file name
//
// Returns:
//   - string: the id, with every run of characters outside [A-Za-z0-9_-] replaced by "-"
func StructureID(caseKey, fileName string) string {
	return structureIDPattern.ReplaceAllString(caseKey+"-"+fileName, "-")
}

// Metadata is descriptive case information shown next to the viewer.
type Metadata struct {
	Voxels  string `yaml:"voxels,omitempty" toml:"voxels,omitempty" json:"voxels,omitempty"`
	Spacing string `yaml:"spacing,omitempty" toml:"spacing,omitempty" json:"spacing,omitempty"`
	Notes   string `yaml:"notes,omitempty" toml:"notes,omitempty" json:"notes,omitempty"`
}

// Case is one viewable study.
type Case struct {
	ID         string                  `yaml:"id" toml:"id"`
	Label      string                  `yaml:"label" toml:"label"`
	Focus      string                  `yaml:"focus,omitempty" toml:"focus,omitempty"`
	Volume     *model.VolumeDescriptor `yaml:"volume,omitempty" toml:"volume,omitempty"`
	Structures []model.Structure       `yaml:"structures,omitempty" toml:"structures,omitempty"`
	Metadata   Metadata                `yaml:"metadata,omitempty" toml:"metadata,omitempty"`
}

// Structure returns the structure with id.
func (c Case) Structure(id string) (model.Structure, bool) {
	for _, s := range c.Structures {
		if s.ID == id {
			return s, true
		}
	}
	return model.Structure{}, false
}

// CatalogBackendType selects where cases come from.
type CatalogBackendType int

const (
	BackendTypeStatic CatalogBackendType = iota
	BackendTypeS3
)

// ParseBackendType maps "static" or "s3" to a backend type.
func ParseBackendType(s string) (CatalogBackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static", "file":
		return BackendTypeStatic, nil
	case "s3":
		return BackendTypeS3, nil
	default:
		return BackendTypeStatic, fmt.Errorf("unknown catalog source %q", s)
	}
}

func (t CatalogBackendType) String() string {
	if t == BackendTypeS3 {
		return "s3"
	}
	return "static"
}

// catalogBackend produces the full case list.
type catalogBackend interface {
	List(ctx context.Context) ([]Case, error)
}

// catalog is the implementation of the Catalog interface.
type catalog struct {
	mu *sync.Mutex

	backendType CatalogBackendType
	backend     catalogBackend
	resolver    AssetResolver

	path        string
	s3Client    fetcher.S3API
	bucket      string
	prefix      string
	concurrency int

	cases  []Case
	loaded bool

	logger *slog.Logger
}

// Catalog lists cases, loading them once on first use.
type Catalog interface {
	// Cases returns every case in catalog order.
	//
	// Parameters:
	//   - ctx: bounds the first load
	//
	// Returns:
	//   - []Case: the cases
	//   - error: an error if the source could not be read
	Cases(ctx context.Context) ([]Case, error)

	// Case returns the case with id.
	//
	// Parameters:
	//   - ctx: bounds the first load
	//   - id: the case id
	//
	// Returns:
	//   - Case: the case
	//   - error: ErrCaseNotFound, or a load error
	Case(ctx context.Context, id string) (Case, error)

	// Refresh drops the loaded cases so the next call reads the source again.
	Refresh()
}

var _ Catalog = &catalog{}

// NewCatalog creates a Catalog over the selected backend.
//
// Parameters:
//   - backendType: static file or S3 discovery
//   - options: a variadic list of CatalogBuilderOption functions
//
// Returns:
//   - Catalog: the catalog
//   - error: an error if the backend is missing required options
func NewCatalog(backendType CatalogBackendType, options ...CatalogBuilderOption) (Catalog, error) {
	c := &catalog{
		mu:          &sync.Mutex{},
		backendType: backendType,
		concurrency: 4,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.Component(c.logger, "catalog")

	switch backendType {
	case BackendTypeStatic:
		if c.path == "" {
			return nil, errors.New("static catalog needs a file path")
		}
		c.backend = newStaticCatalogBackend(c.path, c.resolver)
	case BackendTypeS3:
		if c.s3Client == nil || c.bucket == "" {
			return nil, errors.New("s3 catalog needs a client and a bucket")
		}
		c.backend = newS3CatalogBackend(c.s3Client, c.bucket, c.prefix, c.resolver, c.concurrency, c.logger)
	default:
		return nil, fmt.Errorf("unsupported catalog backend type: %v", backendType)
	}
	return c, nil
}

// NewCatalogFromConfig wires a Catalog from configuration. The S3 client is only used for the
// s3 source and may be nil otherwise.
func NewCatalogFromConfig(cfg *config.Config, client fetcher.S3API, logger *slog.Logger) (Catalog, error) {
	backendType, err := ParseBackendType(cfg.Catalog.Source)
	if err != nil {
		return nil, err
	}
	return NewCatalog(backendType,
		WithPath(cfg.Catalog.Path),
		WithResolver(NewAssetResolver(cfg.Assets.BaseURL)),
		WithS3(client, cfg.S3.Bucket, cfg.S3.Prefix),
		WithConcurrency(cfg.Catalog.Concurrency),
		WithLogger(logger),
	)
}

func (c *catalog) Cases(ctx context.Context) ([]Case, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		cases, err := c.backend.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s catalog: %w", c.backendType, err)
		}
		c.cases = cases
		c.loaded = true
		c.logger.Info("catalog loaded", "source", c.backendType.String(), "cases", len(cases))
	}
	return append([]Case(nil), c.cases...), nil
}

func (c *catalog) Case(ctx context.Context, id string) (Case, error) {
	cases, err := c.Cases(ctx)
	if err != nil {
		return Case{}, err
	}
	for _, cs := range cases {
		if cs.ID == id {
			return cs, nil
		}
	}
	return Case{}, fmt.Errorf("%w: %q", ErrCaseNotFound, id)
}

func (c *catalog) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cases = nil
	c.loaded = false
}
