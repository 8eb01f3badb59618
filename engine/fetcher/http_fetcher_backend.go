package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// httpFetcherBackend fetches over HTTP(S) with a byte-budgeted in-memory response cache.
// Without revalidation a cached body is returned without touching the network; with revalidation
// the stored ETag / Last-Modified validators are sent and a 304 serves the cached body.
type httpFetcherBackend struct {
	client     *http.Client
	cache      *bodyCache
	revalidate bool
	userAgent  string
	metrics    *metrics.Metrics
}

var _ fetcherBackend = &httpFetcherBackend{}

func newHTTPFetcherBackend(client *http.Client, cacheSize int, ttl time.Duration, revalidate bool, userAgent string, m *metrics.Metrics) *httpFetcherBackend {
	b := &httpFetcherBackend{
		client:     client,
		revalidate: revalidate,
		userAgent:  userAgent,
		metrics:    m,
	}
	if cacheSize > 0 {
		b.cache = newBodyCache(cacheSize, ttl)
	}
	return b
}

func (b *httpFetcherBackend) Fetch(ctx context.Context, url string) ([]byte, error) {
	var cached []byte
	var etag, lastModified string
	if b.cache != nil {
		if body, tag, modified, ok := b.cache.get(url); ok {
			if !b.revalidate {
				b.metrics.FetchCache.WithLabelValues("hit").Inc()
				return body, nil
			}
			cached, etag, lastModified = body, tag, modified
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	if cached != nil {
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if lastModified != "" {
			req.Header.Set("If-Modified-Since", lastModified)
		}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		b.metrics.FetchCache.WithLabelValues("revalidated").Inc()
		return cached, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	b.store(url, body, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"))
	return body, nil
}

func (b *httpFetcherBackend) store(url string, body []byte, etag, lastModified string) {
	if b.cache == nil {
		return
	}
	if !b.cache.set(url, body, etag, lastModified) {
		// bodies beyond the cache budget are served uncached
		b.metrics.FetchCache.WithLabelValues("skipped").Inc()
		return
	}
	b.metrics.FetchCache.WithLabelValues("miss").Inc()
}
