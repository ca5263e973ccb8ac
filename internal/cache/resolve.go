// Package cache implements the content-addressed on-disk cache: the path
// resolver that maps ipfs:// URLs to filenames, and the streaming
// read/write/delete cache I/O built on top of it.
package cache

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/ipfs-cache-gateway/internal/ipfsurl"
)

// Resolve deterministically maps an ipfs:// url plus a content-type hint to
// a filename beneath root (absolute only when root is). Callers must pass the same
// contentTypeHint on read and write for a given url, or lookups will miss
// (see spec.md §4.2).
//
// When createDirs is true, the parent directory of the returned filename is
// created before Resolve returns.
func Resolve(root, url, contentTypeHint string, createDirs bool) (string, error) {
	baseURI, err := ipfsurl.Validate(url)
	if err != nil {
		return "", err
	}

	segments := append([]string{root}, strings.Split(baseURI, "/")...)

	isDirectory := ipfsurl.IsDirectory(baseURI)
	if !isDirectory && contentTypeHint == "text/html" {
		last := segments[len(segments)-1]
		if mime.TypeByExtension(filepath.Ext(last)) == "" {
			// No recognized extension on an HTML response: treat it as a
			// synthesized directory listing, not a literal file.
			isDirectory = true
		}
	}

	var dir, filename string
	if isDirectory {
		dir = filepath.Join(segments...)
		filename = filepath.Join(dir, "index.html")
	} else {
		dir = filepath.Join(segments[:len(segments)-1]...)
		filename = filepath.Join(dir, segments[len(segments)-1])
	}

	if createDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}

	return filename, nil
}
