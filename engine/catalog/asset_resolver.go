package catalog

import (
	"regexp"
	"strings"
)

var absoluteAssetPattern = regexp.MustCompile(`(?i)^(https?|s3)://`)

// AssetResolver turns catalog-relative asset paths into fetchable URLs.
type AssetResolver struct {
	baseURL string
}

// NewAssetResolver creates a resolver joining relative paths to baseURL. Trailing slashes on
// baseURL are ignored.
//
// Parameters:
//   - baseURL: an http(s)://, s3:// or filesystem base
//
// Returns:
//   - AssetResolver: the resolver
func NewAssetResolver(baseURL string) AssetResolver {
	return AssetResolver{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// BaseURL returns the normalized base.
func (r AssetResolver) BaseURL() string {
	return r.baseURL
}

// Resolve maps an asset path to a URL. A blank path gives "". Absolute http(s):// and s3://
// URLs pass through. Anything else loses its leading slashes and a "webOutput/" prefix and is
// joined to the base URL.
//
// Parameters:
//   - path: the asset path from a catalog or manifest
//
// Returns:
//   - string: the URL, or "" for a blank path
func (r AssetResolver) Resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if absoluteAssetPattern.MatchString(path) {
		return path
	}
	path = strings.TrimLeft(path, "/")
	path = strings.TrimPrefix(path, "webOutput")
	path = strings.TrimLeft(path, "/")
	if r.baseURL == "" {
		return path
	}
	return r.baseURL + "/" + path
}
