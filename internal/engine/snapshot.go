package engine

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Snapshot builds the state document of a finished batch: the plan that
// was handed to the orchestrator, the policy and the aggregated outcome.
func Snapshot(res *Result, tasks []Task, dialect string) core.RunSnapshot {
	snap := core.RunSnapshot{
		BatchRunID: res.BatchRunID,
		Dialect:    dialect,
		Policy:     res.Policy,
		Status:     res.Status,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Counts:     res.Counts(),
		Steps:      make([]core.SnapshotStep, 0, len(tasks)),
	}
	for i, t := range tasks {
		step := core.SnapshotStep{Dataset: t.Dataset, DependsOn: t.Upstreams}
		for _, stmt := range t.Statements {
			step.Statements = append(step.Statements, stmt.SQL)
		}
		if i < len(res.Steps) {
			r := res.Steps[i]
			step.Status = r.Status
			step.SkipKind = r.SkipKind
			step.BlockedBy = r.BlockedBy
			step.Attempts = r.Attempts
			step.RowsAffected = r.RowsAffected
			if r.Err != nil {
				step.Error = r.Err.Error()
			}
		}
		snap.Steps = append(snap.Steps, step)
	}
	return snap
}
