package store

import (
	"context"
	"fmt"
)

// Migrate creates the ipfs_object table and its unique index on remote_url
// if they do not already exist. Grounded on
// migration/src/m20220101_000001_create_table.rs: one table, one unique
// index, no down-migration needed since this is the only migration the
// original schema ever had.
func Migrate(ctx context.Context, s *Store) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ipfs_object (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_url        TEXT NOT NULL,
			cached_at         DATETIME NOT NULL,
			last_accessed_at  DATETIME NOT NULL,
			content_type      TEXT NOT NULL,
			content_size      INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating ipfs_object table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS ipfs_object_remote_url_idx
		ON ipfs_object (remote_url);
	`)
	if err != nil {
		return fmt.Errorf("creating remote_url unique index: %w", err)
	}

	return nil
}
