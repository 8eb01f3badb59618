package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// manifestFiles are tried in order for each case folder.
var manifestFiles = []string{"manifest.json", "metadata.json"}

const (
	segmentationDir = "segmentations/"
	documentDir     = "clinical_files/"
)

// manifest is the optional description a processing run leaves in each case folder.
type manifest struct {
	CaseID   string `json:"case_id"`
	Title    string `json:"title"`
	Focus    string `json:"focus"`
	Metadata struct {
		Notes   string `json:"notes"`
		Voxels  string `json:"voxels"`
		Spacing string `json:"spacing"`
	} `json:"metadata"`
	Volume        manifestVolume    `json:"volume"`
	Meshes        map[string]string `json:"meshes"`
	Segmentations []struct {
		Output      string `json:"output"`
		DisplayName string `json:"display_name"`
	} `json:"segmentations"`
	RequestID string  `json:"request_id"`
	Timestamp float64 `json:"timestamp"`
}

// manifestVolume accepts either "file.vti" or {"output": "file.vti"}.
type manifestVolume struct {
	Output string
}

func (v *manifestVolume) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Output = s
		return nil
	}
	var obj struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("volume must be a string or an object with output: %w", err)
	}
	v.Output = obj.Output
	return nil
}

// s3CatalogBackend discovers one case per top-level folder of a bucket prefix.
type s3CatalogBackend struct {
	client      fetcher.S3API
	bucket      string
	prefix      string
	resolver    AssetResolver
	concurrency int
	logger      *slog.Logger
}

func newS3CatalogBackend(client fetcher.S3API, bucket, prefix string, resolver AssetResolver, concurrency int, logger *slog.Logger) *s3CatalogBackend {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3CatalogBackend{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		resolver:    resolver,
		concurrency: max(concurrency, 1),
		logger:      logger,
	}
}

func (b *s3CatalogBackend) List(ctx context.Context) ([]Case, error) {
	folders, _, err := b.list(ctx, b.prefix, "/")
	if err != nil {
		return nil, fmt.Errorf("failed to list case folders: %w", err)
	}
	caseKeys := make([]string, 0, len(folders))
	for _, f := range folders {
		if key := strings.Trim(strings.TrimPrefix(f, b.prefix), "/"); key != "" {
			caseKeys = append(caseKeys, key)
		}
	}
	sort.Strings(caseKeys)

	built := make([]*Case, len(caseKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, key := range caseKeys {
		g.Go(func() error {
			c, err := b.buildCase(gctx, key)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// one broken folder does not hide the others
				b.logger.Warn("skipping case", "case", key, "error", err)
				return nil
			}
			built[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(built))
	for _, c := range built {
		if c != nil {
			cases = append(cases, *c)
		}
	}
	return cases, nil
}

// list pages through ListObjectsV2, returning common prefixes and object keys.
func (b *s3CatalogBackend) list(ctx context.Context, prefix, delimiter string) ([]string, []string, error) {
	var prefixes, keys []string
	var token *string
	for {
		in := &s3.ListObjectsV2Input{Bucket: &b.bucket, Prefix: &prefix, ContinuationToken: token}
		if delimiter != "" {
			in.Delimiter = &delimiter
		}
		out, err := b.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, nil, &fetcher.TransportError{URL: fetcher.S3URL(b.bucket, prefix), StatusCode: fetcher.StatusCode(err), Err: err}
		}
		for _, p := range out.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(p.Prefix))
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	return prefixes, keys, nil
}

func (b *s3CatalogBackend) buildCase(ctx context.Context, caseKey string) (*Case, error) {
	var (
		objects []string
		m       *manifest
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		casePrefix := b.prefix + caseKey + "/"
		_, keys, err := b.list(gctx, casePrefix, "")
		if err != nil {
			return err
		}
		for _, k := range keys {
			if rel := strings.TrimPrefix(k, casePrefix); rel != "" {
				objects = append(objects, rel)
			}
		}
		return nil
	})
	g.Go(func() error {
		m = b.readManifest(gctx, caseKey)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if m == nil {
		m = &manifest{}
	}

	var meshFiles, volumeFiles []string
	documents := 0
	for _, o := range objects {
		lower := strings.ToLower(o)
		switch {
		case strings.HasPrefix(o, segmentationDir) && strings.HasSuffix(lower, ".vtp"):
			meshFiles = append(meshFiles, o)
		case strings.HasPrefix(o, documentDir) && strings.HasSuffix(lower, ".pdf"):
			documents++
		case strings.HasSuffix(lower, ".vti"):
			volumeFiles = append(volumeFiles, o)
		}
	}

	id := common.Coalesce(m.CaseID, caseKey)
	c := &Case{
		ID:         id,
		Label:      common.Coalesce(m.Title, common.TitleCase(id)),
		Focus:      common.Coalesce(m.Focus, DefaultFocus),
		Structures: b.buildStructures(caseKey, meshFiles, m),
	}
	if volumePath := chooseVolume(m, volumeFiles); volumePath != "" {
		c.Volume = &model.VolumeDescriptor{URL: b.assetURL(caseKey, volumePath), Format: model.DefaultVolumeFormat}
	}
	c.Metadata = Metadata{
		Voxels:  m.Metadata.Voxels,
		Spacing: m.Metadata.Spacing,
		Notes:   metadataNotes(m, documents, len(c.Structures)),
	}
	return c, nil
}

// readManifest returns the first readable manifest of caseKey, or nil.
func (b *s3CatalogBackend) readManifest(ctx context.Context, caseKey string) *manifest {
	for _, name := range manifestFiles {
		key := b.prefix + caseKey + "/" + name
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
		if err != nil {
			b.logger.Debug("manifest unavailable", "case", caseKey, "file", name, "error", err)
			continue
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			b.logger.Debug("manifest read failed", "case", caseKey, "file", name, "error", err)
			continue
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			b.logger.Warn("manifest malformed", "case", caseKey, "file", name, "error", err)
			continue
		}
		return &m
	}
	return nil
}

func (b *s3CatalogBackend) buildStructures(caseKey string, meshFiles []string, m *manifest) []model.Structure {
	names := make(map[string]string)
	for label, p := range m.Meshes {
		names[strings.TrimLeft(p, "/")] = label
	}
	for _, s := range m.Segmentations {
		if s.Output != "" {
			names[strings.TrimLeft(s.Output, "/")] = common.Coalesce(s.DisplayName, s.Output)
		}
	}

	structures := make([]model.Structure, 0, len(meshFiles))
	for i, rel := range meshFiles {
		fileName := path.Base(rel)
		name, ok := names[strings.TrimLeft(rel, "/")]
		if !ok {
			name, ok = names[fileName]
		}
		if !ok {
			name = fileName
		}
		structures = append(structures, model.Structure{
			ID:      StructureID(caseKey, fileName),
			Name:    common.TitleCase(name),
			Color:   Palette[i%len(Palette)],
			MeshURL: b.assetURL(caseKey, rel),
		})
	}
	return structures
}

// assetURL locates rel inside caseKey: through the resolver when a base URL is configured,
// otherwise as an s3:// URL.
func (b *s3CatalogBackend) assetURL(caseKey, rel string) string {
	rel = caseKey + "/" + strings.TrimLeft(rel, "/")
	if b.resolver.BaseURL() != "" {
		return b.resolver.Resolve(rel)
	}
	return fetcher.S3URL(b.bucket, b.prefix+rel)
}

// chooseVolume prefers the manifest's volume when it was uploaded, then a *_volume.vti, then any .vti.
func chooseVolume(m *manifest, files []string) string {
	if want := strings.TrimLeft(strings.TrimSpace(m.Volume.Output), "/"); want != "" {
		for _, f := range files {
			if strings.EqualFold(f, want) {
				return f
			}
		}
	}
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(f), "_volume.vti") {
			return f
		}
	}
	if len(files) > 0 {
		return files[0]
	}
	return ""
}

func metadataNotes(m *manifest, documents, structures int) string {
	var notes []string
	if m.RequestID != "" {
		notes = append(notes, "Request "+m.RequestID)
	}
	if m.Timestamp > 0 {
		processed := time.Unix(int64(m.Timestamp), 0).UTC()
		notes = append(notes, "Processed "+processed.Format("2006-01-02 15:04 MST"))
	}
	notes = append(notes, fmt.Sprintf("Includes %d %s and %d %s.",
		documents, plural(documents, "document"), structures, plural(structures, "structure")))
	if m.Metadata.Notes != "" {
		notes = append(notes, m.Metadata.Notes)
	}
	return strings.Join(notes, " ")
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
