package sweep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfs/ipfs-cache-gateway/internal/cache"
	"github.com/ipfs/ipfs-cache-gateway/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "objects.sqlite")
	s, err := store.Open(ctx, dsn, 1, 4)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx, s))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSweepDeletesStaleRecordsAndFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newTestStore(t)

	staleURL := "ipfs://bafybeicugp6ayh2wh3j2dwb2bhesmxmo2husbbs5prla4wj6rf3ivg3344/old.txt"
	freshURL := "ipfs://bafybeicugp6ayh2wh3j2dwb2bhesmxmo2husbbs5prla4wj6rf3ivg3344/fresh.txt"

	_, err := cache.StreamWrite(root, staleURL, "text/plain", strings.NewReader("stale"))
	require.NoError(t, err)
	_, err = cache.StreamWrite(root, freshURL, "text/plain", strings.NewReader("fresh"))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, staleURL, "text/plain", 5))
	require.NoError(t, s.Upsert(ctx, freshURL, "text/plain", 5))

	// Backdate the "stale" record's last_accessed_at directly; Upsert always
	// stamps "now", so the test reaches into the DB to simulate the passage
	// of time.
	_, err = s.DB().ExecContext(ctx,
		`UPDATE ipfs_object SET last_accessed_at = ? WHERE remote_url = ?`,
		time.Now().UTC().Add(-48*time.Hour), staleURL)
	require.NoError(t, err)

	sweeper := New(Config{CacheRoot: root, DeleteAfter: 24 * time.Hour}, s)
	result, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Failed)

	_, ok := s.ContentType(ctx, staleURL)
	assert.False(t, ok, "stale record must be gone")

	ct, ok := s.ContentType(ctx, freshURL)
	assert.True(t, ok, "fresh record must survive")
	assert.Equal(t, "text/plain", ct)

	staleFilename, err := cache.Resolve(root, staleURL, "", false)
	require.NoError(t, err)
	_, statErr := os.Stat(staleFilename)
	assert.True(t, os.IsNotExist(statErr), "stale cache file must be deleted")

	freshFilename, err := cache.Resolve(root, freshURL, "", false)
	require.NoError(t, err)
	_, statErr = os.Stat(freshFilename)
	assert.NoError(t, statErr, "fresh cache file must survive")
}

func TestSweepNoStaleRecordsIsNoop(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "ipfs://bafyabc/a", "text/plain", 1))

	sweeper := New(Config{CacheRoot: root, DeleteAfter: 24 * time.Hour}, s)
	result, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
}
