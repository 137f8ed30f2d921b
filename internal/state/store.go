// Package state persists the execution observability record: an append-only
// event log with one row per step attempt, and one snapshot document per
// batch run. Writes go to SQLite and are treated as best-effort by callers.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Store is the observability store.
type Store interface {
	core.Recorder

	// Events returns the events of a batch ordered by dataset and attempt.
	Events(ctx context.Context, batchRunID string) ([]core.AttemptEvent, error)
	// Snapshot returns the snapshot of a batch, or ErrNotFound.
	Snapshot(ctx context.Context, batchRunID string) (*core.RunSnapshot, error)
	// RecentSnapshots returns the newest snapshots first.
	RecentSnapshots(ctx context.Context, limit int) ([]core.RunSnapshot, error)
	// DeleteSnapshotsBefore removes snapshots of batches started before t.
	DeleteSnapshotsBefore(ctx context.Context, t time.Time) (int64, error)

	Close() error
}
