package fetcher

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"
)

// fileFetcherBackend reads file:// URLs and bare paths from the local filesystem.
type fileFetcherBackend struct{}

var _ fetcherBackend = &fileFetcherBackend{}

func newFileFetcherBackend() *fileFetcherBackend {
	return &fileFetcherBackend{}
}

func (b *fileFetcherBackend) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	path := rawURL
	if strings.HasPrefix(strings.ToLower(rawURL), "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &TransportError{URL: rawURL, Err: err}
		}
		path = u.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &TransportError{URL: rawURL, StatusCode: 404, Status: "Not Found", Err: err}
		}
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	return data, nil
}
