package fetcher

import "context"

// fetcherBackend defines the transport-specific half of a fetch.
// Concrete implementations (HTTP, S3, file) own their client and error mapping.
type fetcherBackend interface {
	// Fetch retrieves the full body at url.
	//
	// Parameters:
	//   - ctx: cancels the transfer
	//   - url: an URL whose scheme this backend serves
	//
	// Returns:
	//   - []byte: the body
	//   - error: a *TransportError describing the failure
	Fetch(ctx context.Context, url string) ([]byte, error)
}
