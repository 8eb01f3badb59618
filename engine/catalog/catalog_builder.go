package catalog

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
)

// CatalogBuilderOption is a functional option used to configure a Catalog during construction.
type CatalogBuilderOption func(*catalog)

// WithPath sets the file read by the static backend.
//
// Parameters:
//   - path: a .yaml, .yml or .toml file
//
// Returns:
//   - CatalogBuilderOption: a function that sets the path
func WithPath(path string) CatalogBuilderOption {
	return func(c *catalog) {
		c.path = path
	}
}

// WithResolver sets how relative asset paths become URLs.
func WithResolver(r AssetResolver) CatalogBuilderOption {
	return func(c *catalog) {
		c.resolver = r
	}
}

// WithS3 sets the client, bucket and key prefix scanned by the S3 backend.
//
// Parameters:
//   - client: the S3 client
//   - bucket: the bucket holding one folder per case
//   - prefix: an optional key prefix above the case folders
//
// Returns:
//   - CatalogBuilderOption: a function that sets the S3 source
func WithS3(client fetcher.S3API, bucket, prefix string) CatalogBuilderOption {
	return func(c *catalog) {
		c.s3Client = client
		c.bucket = bucket
		c.prefix = prefix
	}
}

// WithConcurrency bounds the number of cases discovered in parallel. Values below one are ignored.
func WithConcurrency(n int) CatalogBuilderOption {
	return func(c *catalog) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) CatalogBuilderOption {
	return func(c *catalog) {
		c.logger = l
	}
}
