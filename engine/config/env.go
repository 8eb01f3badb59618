package config

import (
	"fmt"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OXY_IMAGING_"

// ApplyEnv overrides fields from environment variables.
//
// Parameters:
//   - lookup: the variable source, os.LookupEnv outside of tests
//
// Returns:
//   - error: an error naming the variable whose value could not be parsed
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"THEME":            &c.Theme,
		"RENDERER_BACKEND": &c.Renderer.Backend,
		"ASSET_BASE_URL":   &c.Assets.BaseURL,
		"S3_REGION":        &c.S3.Region,
		"S3_ENDPOINT":      &c.S3.Endpoint,
		"S3_BUCKET":        &c.S3.Bucket,
		"S3_PREFIX":        &c.S3.Prefix,
		"CATALOG_SOURCE":   &c.Catalog.Source,
		"CATALOG_PATH":     &c.Catalog.Path,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_FILE":         &c.Log.File,
		"METRICS_ADDR":     &c.Metrics.Addr,
		"LIGHT_TYPE":       &c.Light.Type,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"IMAGING_ENABLED":   &c.ImagingEnabled,
		"S3_PATH_STYLE":     &c.S3.PathStyle,
		"FETCH_REVALIDATE":  &c.Fetcher.Revalidate,
		"AUTO_WINDOW_LEVEL": &c.Slice.AutoWindowLevel,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"WORKERS":       &c.Workers.Count,
		"CACHE_SIZE_MB": &c.Fetcher.CacheSizeMB,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	return nil
}
