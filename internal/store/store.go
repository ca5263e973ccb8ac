// Package store implements the Object Store: a single-table SQL record of
// every cached remote URL, its cache/access timestamps, and the content
// type/size recorded at first insert.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	logging "github.com/ipfs/go-log/v2"
	_ "modernc.org/sqlite"
)

var log = logging.Logger("store")

// Record mirrors one row of the ipfs_object table.
type Record struct {
	ID              int64     `db:"id"`
	RemoteURL       string    `db:"remote_url"`
	CachedAt        time.Time `db:"cached_at"`
	LastAccessedAt  time.Time `db:"last_accessed_at"`
	ContentType     string    `db:"content_type"`
	ContentSize     int64     `db:"content_size"`
}

// Store is the Object Store. It wraps a *sqlx.DB connection pool sized by
// minConns/maxConns (spec.md §6 db_min_connections/db_max_connections).
type Store struct {
	db *sqlx.DB
}

// Open connects to a SQLite database at dsn, enables WAL journaling, sizes
// the connection pool, and warms it to minConns connections so the pool
// doesn't pay cold-open latency on the first request.
func Open(ctx context.Context, dsn string, minConns, maxConns int) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL journaling: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	// database/sql keeps only 2 idle connections by default; raise the cap so
	// the warmed connections stay in the pool.
	if minConns > 2 {
		db.SetMaxIdleConns(minConns)
	}

	if err := warmPool(ctx, db, minConns); err != nil {
		log.Warnw("failed to warm connection pool", "error", err)
	}

	return &Store{db: db}, nil
}

func warmPool(ctx context.Context, db *sqlx.DB, minConns int) error {
	conns := make([]*sql.Conn, 0, minConns)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < minConns; i++ {
		c, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for direct queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Upsert inserts a new row for remoteURL, or — if remoteURL already exists —
// advances its last_accessed_at to now. contentType and contentSize are only
// persisted at insert time (spec.md §4.3, §9 Open Question (a)): a re-fetch
// never rewrites them.
func (s *Store) Upsert(ctx context.Context, remoteURL, contentType string, contentSize int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ipfs_object (remote_url, cached_at, last_accessed_at, content_type, content_size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(remote_url) DO UPDATE SET last_accessed_at = excluded.last_accessed_at
	`, remoteURL, now, now, contentType, contentSize)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", remoteURL, err)
	}
	return nil
}

// ContentType returns the content type on record for remoteURL, if any. It
// implements cache.ContentTypeLookup.
func (s *Store) ContentType(ctx context.Context, remoteURL string) (string, bool) {
	var contentType string
	err := s.db.GetContext(ctx, &contentType,
		`SELECT content_type FROM ipfs_object WHERE remote_url = ?`, remoteURL)
	if err != nil {
		return "", false
	}
	return contentType, true
}

// FindStale returns every record whose last_accessed_at is older than
// before.
func (s *Store) FindStale(ctx context.Context, before time.Time) ([]Record, error) {
	var records []Record
	err := s.db.SelectContext(ctx, &records,
		`SELECT id, remote_url, cached_at, last_accessed_at, content_type, content_size
		 FROM ipfs_object WHERE last_accessed_at < ?`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("finding stale records: %w", err)
	}
	return records, nil
}

// Delete removes a record by primary key.
func (s *Store) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM ipfs_object WHERE id = ?`, id)
	return err
}

// BeginTx opens a transaction for the Sweeper's batch delete.
func (s *Store) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}
