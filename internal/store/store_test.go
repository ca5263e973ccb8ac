package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "objects.sqlite")
	s, err := Open(ctx, dsn, 1, 4)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, s))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertInsertsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "ipfs://cid/a", "application/json", 42))

	ct, ok := s.ContentType(ctx, "ipfs://cid/a")
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)
}

func TestUpsertOnConflictOnlyTouchesLastAccessed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "ipfs://cid/a", "application/json", 42))
	// A re-fetch with a different declared type/size must not rewrite them
	// (spec.md §9 Open Question (a)).
	require.NoError(t, s.Upsert(ctx, "ipfs://cid/a", "text/plain", 7))

	ct, ok := s.ContentType(ctx, "ipfs://cid/a")
	require.True(t, ok)
	assert.Equal(t, "application/json", ct)
}

func TestFindStale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "ipfs://cid/old", "text/plain", 1))

	threshold := time.Now().UTC().Add(time.Hour)
	stale, err := s.FindStale(ctx, threshold)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "ipfs://cid/old", stale[0].RemoteURL)

	notStale, err := s.FindStale(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, notStale)
}

func TestDeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Upsert(ctx, "ipfs://cid/a", "text/plain", 1))

	stale, err := s.FindStale(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, tx, stale[0].ID))
	require.NoError(t, tx.Commit())

	remaining, err := s.FindStale(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
