// Package sweep implements the Eviction Sweeper: a one-shot batch delete of
// cache records (and their cache files) whose last_accessed_at has fallen
// behind the configured retention window.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/jbenet/goprocess"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"

	"github.com/ipfs/ipfs-cache-gateway/internal/cache"
	"github.com/ipfs/ipfs-cache-gateway/internal/store"
)

var log = logging.Logger("sweep")

// ObjectStore is the subset of internal/store.Store the Sweeper needs.
type ObjectStore interface {
	FindStale(ctx context.Context, before time.Time) ([]store.Record, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id int64) error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
}

// Config bundles the Sweeper's tunables.
type Config struct {
	CacheRoot   string
	DeleteAfter time.Duration
}

// Sweeper runs one eviction pass per spec.md §4.6.
type Sweeper struct {
	cfg   Config
	store ObjectStore
}

// New constructs a Sweeper.
func New(cfg Config, store ObjectStore) *Sweeper {
	return &Sweeper{cfg: cfg, store: store}
}

// Result summarizes one completed sweep.
type Result struct {
	Deleted int
	Failed  int
}

// Run executes one sweep: enumerate stale records, delete each cache file
// (best-effort, errors logged and non-fatal), then delete all stale records
// in a single transaction. Grounded on original_source/src/bin/cleanup.rs's
// enumerate-then-batch-delete shape.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	threshold := time.Now().UTC().Add(-s.cfg.DeleteAfter)

	stale, err := s.store.FindStale(ctx, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("enumerating stale records: %w", err)
	}
	if len(stale) == 0 {
		log.Debugw("sweep found nothing stale", "threshold", threshold)
		return Result{}, nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning sweep transaction: %w", err)
	}

	var result Result
	for _, rec := range stale {
		if err := cache.Delete(s.cfg.CacheRoot, rec.RemoteURL); err != nil {
			log.Warnw("failed to delete cache file during sweep", "url", rec.RemoteURL, "error", err)
			result.Failed++
		}

		if err := s.store.Delete(ctx, tx, rec.ID); err != nil {
			_ = tx.Rollback()
			return Result{}, fmt.Errorf("deleting record %d (%s): %w", rec.ID, rec.RemoteURL, err)
		}
		result.Deleted++
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing sweep transaction: %w", err)
	}

	log.Infow("sweep complete", "deleted", result.Deleted, "cache_delete_failures", result.Failed)
	return result, nil
}

// RunProcess wraps Run in a goprocess.Process, matching the teacher's use of
// jbenet/goprocess for component lifecycle. The process closes itself as
// soon as the single sweep pass finishes.
func RunProcess(ctx context.Context, s *Sweeper) goprocess.Process {
	return goprocess.Go(func(proc goprocess.Process) {
		if _, err := s.Run(ctx); err != nil {
			log.Errorw("sweep failed", "error", err)
		}
	})
}
