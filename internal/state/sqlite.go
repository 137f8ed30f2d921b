package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var (
	// ErrNotOpen is returned when the store is used before Open.
	ErrNotOpen = errors.New("database not opened")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database and runs pending migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single writer; an in-memory database also exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("state store opened", "path", path)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt appends an event. A second event for the same
// (batch, dataset, attempt) is rejected.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, e core.AttemptEvent) error {
	if s.db == nil {
		return ErrNotOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_events
		(batch_run_id, dataset, attempt_no, status, skip_kind, blocked_by, started_at, finished_at, rows_affected, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BatchRunID, e.Dataset, e.AttemptNo, string(e.Status),
		nullString(string(e.SkipKind)), nullString(e.BlockedBy),
		e.StartedAt.UTC(), e.FinishedAt.UTC(), e.RowsAffected, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record event %s/%s#%d: %w", e.BatchRunID, e.Dataset, e.AttemptNo, err)
	}
	return nil
}

// WriteSnapshot stores the snapshot document of a batch run.
func (s *SQLiteStore) WriteSnapshot(ctx context.Context, snap core.RunSnapshot) error {
	if s.db == nil {
		return ErrNotOpen
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", snap.BatchRunID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_snapshots (batch_run_id, created_at, status, payload)
		VALUES (?, ?, ?, ?)`,
		snap.BatchRunID, snap.StartedAt.UTC(), string(snap.Status), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot %s: %w", snap.BatchRunID, err)
	}
	return nil
}

// Events returns the events of a batch ordered by dataset and attempt.
func (s *SQLiteStore) Events(ctx context.Context, batchRunID string) ([]core.AttemptEvent, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_run_id, dataset, attempt_no, status, skip_kind, blocked_by,
		       started_at, finished_at, rows_affected, error
		FROM execution_events
		WHERE batch_run_id = ?
		ORDER BY dataset, attempt_no`, batchRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []core.AttemptEvent
	for rows.Next() {
		var e core.AttemptEvent
		var status string
		var skipKind, blockedBy, errMsg sql.NullString
		if err := rows.Scan(&e.BatchRunID, &e.Dataset, &e.AttemptNo, &status, &skipKind, &blockedBy,
			&e.StartedAt, &e.FinishedAt, &e.RowsAffected, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Status = core.StepStatus(status)
		e.SkipKind = core.SkipKind(skipKind.String)
		e.BlockedBy, e.Error = blockedBy.String, errMsg.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Snapshot returns the snapshot of a batch.
func (s *SQLiteStore) Snapshot(ctx context.Context, batchRunID string) (*core.RunSnapshot, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM execution_snapshots WHERE batch_run_id = ?`, batchRunID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", batchRunID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// RecentSnapshots returns the newest snapshots first.
func (s *SQLiteStore) RecentSnapshots(ctx context.Context, limit int) ([]core.RunSnapshot, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM execution_snapshots
		ORDER BY created_at DESC, batch_run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.RunSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap, err := decodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// DeleteSnapshotsBefore removes snapshots of batches started before t.
// Events are kept.
func (s *SQLiteStore) DeleteSnapshotsBefore(ctx context.Context, t time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_snapshots WHERE created_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return res.RowsAffected()
}

func decodeSnapshot(payload string) (*core.RunSnapshot, error) {
	var snap core.RunSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
