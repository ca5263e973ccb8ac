// Package ipfsurl validates ipfs:// URLs and extracts their base URI.
package ipfsurl

import (
	"errors"
	"fmt"
	"strings"

	cid "github.com/ipfs/go-cid"
)

const scheme = "ipfs://"

// ErrInvalidURL is returned when a string is not a well-formed ipfs:// URL.
var ErrInvalidURL = errors.New("invalid ipfs url")

// Validate parses url, confirms it carries a syntactically valid CID as its
// first path segment, and returns the base URI (the url with the scheme
// stripped). No network I/O is performed.
func Validate(url string) (string, error) {
	base, ok := strings.CutPrefix(url, scheme)
	if !ok {
		return "", fmt.Errorf("%w: %q: missing %q prefix", ErrInvalidURL, url, scheme)
	}
	if base == "" {
		return "", fmt.Errorf("%w: %q: empty path", ErrInvalidURL, url)
	}

	first, _, _ := strings.Cut(base, "/")
	if first == "" {
		return "", fmt.Errorf("%w: %q: empty CID segment", ErrInvalidURL, url)
	}
	if _, err := cid.Decode(first); err != nil {
		return "", fmt.Errorf("%w: %q: %s", ErrInvalidURL, url, err)
	}

	return base, nil
}

// IsDirectory reports whether a base URI denotes a directory reference
// (i.e. it ends with a trailing slash).
func IsDirectory(baseURI string) bool {
	return strings.HasSuffix(baseURI, "/")
}

// Join appends a trailing slash to baseURI, producing the directory form of
// the same reference.
func Join(baseURI string) string {
	if IsDirectory(baseURI) {
		return baseURI
	}
	return baseURI + "/"
}

// WithScheme re-attaches the ipfs:// scheme to a base URI.
func WithScheme(baseURI string) string {
	return scheme + baseURI
}
