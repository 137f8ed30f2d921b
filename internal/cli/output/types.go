package output

import "time"

// DAGOutput is the JSON form of the dependency graph.
type DAGOutput struct {
	Levels        []DAGLevel `json:"levels"`
	TotalDatasets int        `json:"total_datasets"`
	TotalEdges    int        `json:"total_edges"`
}

// DAGLevel is one execution level.
type DAGLevel struct {
	Level    int       `json:"level"`
	Datasets []DAGNode `json:"datasets"`
}

// DAGNode is one dataset in the graph.
type DAGNode struct {
	Dataset   string   `json:"dataset"`
	Table     string   `json:"table"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}

// StatementOutput is one rendered SQL statement.
type StatementOutput struct {
	Phase  string `json:"phase"`
	Target string `json:"target"`
	SQL    string `json:"sql"`
}

// RenderOutput is the JSON form of a rendered dataset.
type RenderOutput struct {
	Dataset    string            `json:"dataset"`
	Table      string            `json:"table"`
	Statements []StatementOutput `json:"statements"`
	Error      string            `json:"error,omitempty"`
}

// DriftFinding is one detected schema difference.
type DriftFinding struct {
	Table    string `json:"table"`
	Column   string `json:"column,omitempty"`
	Declared string `json:"declared,omitempty"`
	Physical string `json:"physical,omitempty"`
	Change   string `json:"change,omitempty"`
	Action   string `json:"action"`
}

// DriftDataset is the preflight outcome of one dataset.
type DriftDataset struct {
	Dataset    string            `json:"dataset"`
	Status     string            `json:"status"` // ok, evolve, blocked
	Findings   []DriftFinding    `json:"findings,omitempty"`
	Statements []StatementOutput `json:"statements,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// DriftOutput is the JSON form of a drift preflight.
type DriftOutput struct {
	Dialect  string         `json:"dialect"`
	Blocked  bool           `json:"blocked"`
	Datasets []DriftDataset `json:"datasets"`
}

// StepOutput is the outcome of one dataset in a run.
type StepOutput struct {
	Dataset      string `json:"dataset"`
	Status       string `json:"status"`
	SkipKind     string `json:"skip_kind,omitempty"`
	BlockedBy    string `json:"blocked_by,omitempty"`
	Attempts     int    `json:"attempts"`
	RowsAffected int64  `json:"rows_affected"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// RunOutput is the JSON form of a batch run.
type RunOutput struct {
	BatchRunID string         `json:"batch_run_id"`
	Status     string         `json:"status"`
	Execute    bool           `json:"execute"`
	Dialect    string         `json:"dialect"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMS int64          `json:"duration_ms"`
	Counts     map[string]int `json:"counts"`
	Steps      []StepOutput   `json:"steps"`
	Error      string         `json:"error,omitempty"`
}

// DialectOutput describes one registered dialect.
type DialectOutput struct {
	Name                    string `json:"name"`
	DefaultSchema           string `json:"default_schema,omitempty"`
	Executor                bool   `json:"executor"`
	SupportsMerge           bool   `json:"supports_merge"`
	SupportsDeleteDetection bool   `json:"supports_delete_detection"`
	SupportsHashExpression  bool   `json:"supports_hash_expression"`
	SupportsAlterColumnType bool   `json:"supports_alter_column_type"`
}

// RunSummary is one persisted run snapshot.
type RunSummary struct {
	BatchRunID string         `json:"batch_run_id"`
	Status     string         `json:"status"`
	Dialect    string         `json:"dialect"`
	Execute    bool           `json:"execute"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Counts     map[string]int `json:"counts,omitempty"`
}

// EventOutput is one recorded attempt.
type EventOutput struct {
	Dataset      string    `json:"dataset"`
	AttemptNo    int       `json:"attempt_no"`
	Status       string    `json:"status"`
	SkipKind     string    `json:"skip_kind,omitempty"`
	BlockedBy    string    `json:"blocked_by,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	RowsAffected int64     `json:"rows_affected"`
	Error        string    `json:"error,omitempty"`
}

// RunDetailOutput is the JSON form of a single persisted run.
type RunDetailOutput struct {
	Run    RunSummary    `json:"run"`
	Events []EventOutput `json:"events"`
}
