package fetcher

import (
	"fmt"
)

// TransportError reports a failed fetch: a network error, a non-success status or an unusable URL.
type TransportError struct {
	// URL is the requested location.
	URL string
	// StatusCode is the response status, zero when no response was received.
	StatusCode int
	// Status is the response status text when available.
	Status string
	// Err is the underlying cause, if any.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.StatusCode, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: failed", e.URL)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the remote answered 404.
func (e *TransportError) NotFound() bool {
	return e.StatusCode == 404
}
