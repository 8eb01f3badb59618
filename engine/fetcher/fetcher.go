package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// FetcherBackendType identifies the transport used for a URL.
type FetcherBackendType int

const (
	// BackendTypeHTTP serves http:// and https:// URLs.
	BackendTypeHTTP FetcherBackendType = iota
	// BackendTypeS3 serves s3://bucket/key URLs.
	BackendTypeS3
	// BackendTypeFile serves file:// URLs and bare paths.
	BackendTypeFile
)

// String returns the metric label of the backend.
func (b FetcherBackendType) String() string {
	switch b {
	case BackendTypeHTTP:
		return "http"
	case BackendTypeS3:
		return "s3"
	case BackendTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// fetcher is the implementation of the Fetcher interface.
type fetcher struct {
	mu *sync.Mutex

	backends map[FetcherBackendType]fetcherBackend

	httpClient     *http.Client
	cacheSizeBytes int
	cacheTTL       time.Duration
	revalidate     bool
	userAgent      string
	s3Client       S3API

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Fetcher retrieves the raw bytes of an asset by URL.
// It is safe for concurrent use; the loaders above it add de-duplication, it does not.
type Fetcher interface {
	// Fetch retrieves the full body at url.
	// The backend is chosen by scheme: http(s) goes to the HTTP backend, s3 to the S3 backend and
	// file or no scheme to the local file backend. The HTTP backend serves repeated requests for the
	// same URL from its response cache.
	//
	// Parameters:
	//   - ctx: cancels the request; cancellation surfaces as a TransportError wrapping ctx.Err()
	//   - url: the asset location
	//
	// Returns:
	//   - []byte: the body, owned by the caller
	//   - error: a *TransportError on network failure, non-success status or unknown scheme
	Fetch(ctx context.Context, url string) ([]byte, error)

	// Backend reports which backend would serve url.
	//
	// Parameters:
	//   - url: the asset location
	//
	// Returns:
	//   - FetcherBackendType: the backend type
	//   - error: a *TransportError when the scheme is not supported
	Backend(url string) (FetcherBackendType, error)
}

var _ Fetcher = &fetcher{}

// NewFetcher creates a Fetcher with the HTTP and file backends, plus the S3 backend when an
// S3 client is supplied through WithS3Client.
//
// Parameters:
//   - options: a variadic list of FetcherBuilderOption functions
//
// Returns:
//   - Fetcher: the configured fetcher
func NewFetcher(options ...FetcherBuilderOption) Fetcher {
	f := &fetcher{
		mu:             &sync.Mutex{},
		backends:       make(map[FetcherBackendType]fetcherBackend),
		httpClient:     &http.Client{Timeout: 2 * time.Minute},
		cacheSizeBytes: 256 << 20,
		userAgent:      "oxy-imaging",
	}
	for _, option := range options {
		option(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = logging.Component(f.logger, "fetcher")
	f.metrics = metrics.Coalesce(f.metrics)

	f.backends[BackendTypeHTTP] = newHTTPFetcherBackend(f.httpClient, f.cacheSizeBytes, f.cacheTTL, f.revalidate, f.userAgent, f.metrics)
	f.backends[BackendTypeFile] = newFileFetcherBackend()
	if f.s3Client != nil {
		f.backends[BackendTypeS3] = newS3FetcherBackend(f.s3Client)
	}
	return f
}

func (f *fetcher) Backend(rawURL string) (FetcherBackendType, error) {
	scheme := ""
	if u, err := url.Parse(rawURL); err == nil {
		scheme = strings.ToLower(u.Scheme)
	} else if strings.Contains(rawURL, "://") {
		return 0, &TransportError{URL: rawURL, Err: fmt.Errorf("invalid url: %w", err)}
	}

	var bt FetcherBackendType
	switch scheme {
	case "http", "https":
		bt = BackendTypeHTTP
	case "s3":
		bt = BackendTypeS3
	case "file", "":
		bt = BackendTypeFile
	default:
		return 0, &TransportError{URL: rawURL, Err: fmt.Errorf("unsupported url scheme %q", scheme)}
	}
	return bt, nil
}

func (f *fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bt, err := f.Backend(rawURL)
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}

	f.mu.Lock()
	backend, ok := f.backends[bt]
	f.mu.Unlock()
	if !ok {
		f.metrics.FetchRequests.WithLabelValues(bt.String(), "error").Inc()
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("no %s backend configured", bt)}
	}

	start := time.Now()
	data, err := backend.Fetch(ctx, rawURL)
	if err != nil {
		f.metrics.FetchRequests.WithLabelValues(bt.String(), "error").Inc()
		f.logger.Debug("fetch failed", "url", rawURL, "backend", bt.String(), "error", err)
		return nil, err
	}

	f.metrics.FetchRequests.WithLabelValues(bt.String(), "ok").Inc()
	f.metrics.FetchBytes.WithLabelValues(bt.String()).Add(float64(len(data)))
	f.logger.Debug("fetched", "url", rawURL, "backend", bt.String(), "bytes", len(data), "elapsed", time.Since(start))
	return data, nil
}
