package core

import (
	"context"
	"time"
)

// StepStatus represents the terminal status of an execution step or attempt.
type StepStatus string

// Step status constants.
const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
	StepStatusSkipped StepStatus = "skipped"
)

// SkipKind distinguishes the two reasons a step is skipped.
type SkipKind string

// Skip kind constants.
const (
	SkipNone SkipKind = ""
	// SkipBlocked means an upstream dependency failed, so the step was never attempted.
	SkipBlocked SkipKind = "blocked"
	// SkipAborted means fail-fast stopped the run before the step was reached.
	SkipAborted SkipKind = "aborted"
)

// RunStatus represents the aggregated outcome of a batch run.
type RunStatus string

// Run status constants.
const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
	RunStatusBlocked RunStatus = "blocked"
)

// ExecutionPolicy controls failure handling for a run.
type ExecutionPolicy struct {
	// Execute performs real execution; false renders only (preview/dry-run).
	Execute bool `json:"execute" koanf:"execute"`
	// ContinueOnError keeps independent branches running after a failure.
	ContinueOnError bool `json:"continue_on_error" koanf:"continue_on_error"`
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `json:"max_retries" koanf:"max_retries"`
	// RetryBackoff is the initial delay between attempts.
	RetryBackoff time.Duration `json:"retry_backoff" koanf:"retry_backoff"`
	// Parallelism bounds concurrently executing steps (<=0 means 1).
	Parallelism int `json:"parallelism" koanf:"parallelism"`
	// Debug logs every rendered statement before execution.
	Debug bool `json:"debug" koanf:"debug"`
}

// AttemptEvent is one append-only entry of the execution event log.
// Skipped steps produce a single event with AttemptNo 0.
type AttemptEvent struct {
	BatchRunID   string     `json:"batch_run_id"`
	Dataset      string     `json:"dataset"`
	AttemptNo    int        `json:"attempt_no"`
	Status       StepStatus `json:"status"`
	SkipKind     SkipKind   `json:"skip_kind,omitempty"`
	BlockedBy    string     `json:"blocked_by,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	RowsAffected int64      `json:"rows_affected"`
	Error        string     `json:"error,omitempty"`
}

// Duration returns the wall time of the attempt.
func (e AttemptEvent) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// SnapshotStep is the per-step entry of a run snapshot.
type SnapshotStep struct {
	Dataset      string     `json:"dataset"`
	DependsOn    []string   `json:"depends_on,omitempty"`
	Statements   []string   `json:"statements,omitempty"`
	Status       StepStatus `json:"status"`
	SkipKind     SkipKind   `json:"skip_kind,omitempty"`
	BlockedBy    string     `json:"blocked_by,omitempty"`
	Attempts     int        `json:"attempts"`
	RowsAffected int64      `json:"rows_affected"`
	Error        string     `json:"error,omitempty"`
}

// RunSnapshot is the one-per-batch state document (plan + policy + outcome).
type RunSnapshot struct {
	BatchRunID string          `json:"batch_run_id"`
	Dialect    string          `json:"dialect"`
	Policy     ExecutionPolicy `json:"policy"`
	Status     RunStatus       `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Steps      []SnapshotStep  `json:"steps"`
	Counts     map[string]int  `json:"counts"`
}

// Recorder persists observability state. Implementations may fail;
// callers treat every error as best-effort and never propagate it.
type Recorder interface {
	RecordAttempt(ctx context.Context, event AttemptEvent) error
	WriteSnapshot(ctx context.Context, snapshot RunSnapshot) error
}
