package fetcher

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// FetcherBuilderOption is a functional option for configuring a Fetcher via NewFetcher.
type FetcherBuilderOption func(*fetcher)

// WithHTTPClient is an option builder that sets the HTTP client used by the HTTP backend.
//
// Parameters:
//   - c: the client
//
// Returns:
//   - FetcherBuilderOption: a function that applies the client option to a fetcher
func WithHTTPClient(c *http.Client) FetcherBuilderOption {
	return func(f *fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithCacheSize is an option builder that bounds the HTTP response cache. Zero disables caching.
// Responses larger than 1/1024 of the cache are served but never stored.
//
// Parameters:
//   - bytes: the cache size in bytes
//
// Returns:
//   - FetcherBuilderOption: a function that applies the cache size option to a fetcher
func WithCacheSize(bytes int) FetcherBuilderOption {
	return func(f *fetcher) {
		f.cacheSizeBytes = bytes
	}
}

// WithCacheTTL is an option builder that expires cached responses after ttl. Zero keeps them until evicted.
func WithCacheTTL(ttl time.Duration) FetcherBuilderOption {
	return func(f *fetcher) {
		f.cacheTTL = ttl
	}
}

// WithRevalidate is an option builder that switches the HTTP cache from serving stored responses
// directly to issuing conditional requests with the stored validators.
func WithRevalidate(revalidate bool) FetcherBuilderOption {
	return func(f *fetcher) {
		f.revalidate = revalidate
	}
}

// WithUserAgent is an option builder that sets the User-Agent header of HTTP requests.
func WithUserAgent(ua string) FetcherBuilderOption {
	return func(f *fetcher) {
		f.userAgent = ua
	}
}

// WithS3Client is an option builder that enables the s3:// backend.
//
// Parameters:
//   - c: the S3 client, usually from NewS3Client
//
// Returns:
//   - FetcherBuilderOption: a function that applies the S3 option to a fetcher
func WithS3Client(c S3API) FetcherBuilderOption {
	return func(f *fetcher) {
		f.s3Client = c
	}
}

// WithLogger is an option builder that sets the logger.
func WithLogger(l *slog.Logger) FetcherBuilderOption {
	return func(f *fetcher) {
		f.logger = l
	}
}

// WithMetrics is an option builder that sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) FetcherBuilderOption {
	return func(f *fetcher) {
		f.metrics = m
	}
}
