package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookgo/atomicfile"
	"github.com/gabriel-vasile/mimetype"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("cache")

// ReadResult is the outcome of a cache hit: the cached bytes and their
// content type.
type ReadResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ContentTypeLookup resolves the content type an Object Store has on record
// for a remote url. ok is false when no record exists; Read then falls back
// to sniffing the file's magic numbers.
type ContentTypeLookup func(url string) (contentType string, ok bool)

// Read looks up url in the cache. It returns (nil, nil) on a miss. A read
// error is never returned to the caller on a miss path other than genuine
// I/O failures distinct from "file does not exist", matching spec.md §7
// ("CacheIOError on read: logged; treated as miss") — callers should treat
// any returned error as a miss after logging it.
func Read(root, url string, lookup ContentTypeLookup) (*ReadResult, error) {
	result, err := readOnce(root, url, lookup)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	if ipfsHasTrailingSlash(url) {
		return nil, nil
	}

	// Directory fallback: exactly one retry with "/" appended.
	result, err = readOnce(root, joinSlash(url), lookup)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func readOnce(root, url string, lookup ContentTypeLookup) (*ReadResult, error) {
	filename, err := Resolve(root, url, "", false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	contentType, ok := lookup(url)
	if !ok {
		contentType = mimetype.Detect(content).String()
	}

	return &ReadResult{Content: content, ContentType: contentType, Filename: filename}, nil
}

// StreamWrite resolves the cache path for url (creating the parent
// directory), consumes body into a temporary file on the same filesystem,
// and atomically renames it into place on success. On any read error from
// body, the temporary file is removed and no file is ever visible at the
// final path. It returns the final cache filename.
func StreamWrite(root, url, contentType string, body io.Reader) (string, error) {
	filename, err := Resolve(root, url, contentType, true)
	if err != nil {
		return "", err
	}

	tmp, err := atomicfile.New(filename, 0o644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Abort()
		return "", err
	}

	if err := tmp.Close(); err != nil {
		return "", err
	}

	log.Debugw("wrote cache file", "url", url, "filename", filename)
	return filename, nil
}

// Delete removes url's cache file, if present, and then walks upward
// through its ancestor directories removing each that has become empty,
// stopping at the first non-empty ancestor or at root. Missing-file and
// non-empty-directory conditions are absorbed, never returned.
func Delete(root, url string) error {
	filename, err := Resolve(root, url, "", false)
	if err != nil {
		return err
	}

	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		log.Warnw("failed to remove cache file", "filename", filename, "error", err)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	for {
		dirAbs, err := filepath.Abs(dir)
		if err != nil || dirAbs == rootAbs || !isWithin(rootAbs, dirAbs) {
			return nil
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		if len(entries) > 0 {
			return nil
		}

		if err := os.Remove(dir); err != nil {
			return nil
		}
		dir = filepath.Dir(dir)
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func ipfsHasTrailingSlash(url string) bool {
	return len(url) > 0 && url[len(url)-1] == '/'
}

func joinSlash(url string) string {
	if ipfsHasTrailingSlash(url) {
		return url
	}
	return url + "/"
}
