package cache

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "bafybeicugp6ayh2wh3j2dwb2bhesmxmo2husbbs5prla4wj6rf3ivg3344"

func TestResolveDirectory(t *testing.T) {
	root := t.TempDir()

	filename, err := Resolve(root, "ipfs://"+testCID, "text/html", true)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/index.html", filename)
	assertIsDir(t, root+"/"+testCID)
}

func TestResolveSubdirectory(t *testing.T) {
	root := t.TempDir()

	filename, err := Resolve(root, "ipfs://"+testCID+"/metadata", "text/html", true)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/metadata/index.html", filename)
	assertIsDir(t, root+"/"+testCID+"/metadata")
}

func TestResolveNonHTMLFile(t *testing.T) {
	root := t.TempDir()

	filename, err := Resolve(root, "ipfs://"+testCID+"/metadata/3", "application/json", true)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/metadata/3", filename)
	assertIsDir(t, root+"/"+testCID+"/metadata")
}

func TestResolveHTMLFileWithoutExtension(t *testing.T) {
	root := t.TempDir()

	// S3/S4: an HTML hint on an extension-less segment is a directory listing.
	filename, err := Resolve(root, "ipfs://"+testCID+"/metadata/4", "text/html", true)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/metadata/4/index.html", filename)
}

func TestResolveHTMLFileWithExtension(t *testing.T) {
	root := t.TempDir()

	// S4: the extension overrides the directory heuristic.
	filename, err := Resolve(root, "ipfs://"+testCID+"/metadata/5.html", "text/html", true)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/metadata/5.html", filename)
}

func TestResolveTrailingSlashIsAlwaysDirectory(t *testing.T) {
	root := t.TempDir()

	filename, err := Resolve(root, "ipfs://"+testCID+"/metadata/", "application/json", false)
	require.NoError(t, err)
	assert.Equal(t, root+"/"+testCID+"/metadata/index.html", filename)
}

func TestResolveInvalidURL(t *testing.T) {
	_, err := Resolve(t.TempDir(), "not-ipfs://foo", "", false)
	assert.Error(t, err)
}

func assertIsDir(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
