// Package history plans SCD2 historization of a dataset into its _hist table.
//
// Every run emits four statements in a fixed order:
//
//  1. close changed: open rows whose row_hash differs from the current row
//  2. close deleted: open rows whose business key left the current snapshot
//  3. insert changed: new open rows for keys closed as changed in step 1
//  4. insert new: open rows for keys without any open version
//
// Rows are only ever inserted or closed by setting version_ended_at. Every
// statement is guarded by version_ended_at IS NULL, so re-running a run with
// the same timestamp changes nothing.
package history

import (
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Types of the technical history columns.
const (
	TimestampType = "TIMESTAMP"
	StateType     = "VARCHAR(16)"
	RunIDType     = "VARCHAR(64)"
)

// TimestampLayout formats run timestamps as literals.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Input describes the historization of one dataset.
type Input struct {
	Dataset *core.Dataset

	// At is the run timestamp written to version_started_at and
	// version_ended_at. Use Timestamp to build it.
	At    expr.Expr
	RunID string

	// HistoryExists is false when the history table must be created first.
	HistoryExists bool
}

// Timestamp returns the literal expression of a run timestamp (UTC).
func Timestamp(t time.Time) expr.Expr {
	return &expr.Cast{Expr: expr.Str(t.UTC().Format(TimestampLayout)), Type: TimestampType}
}

// Plan returns the history steps of a dataset, or nil when it does not
// historize.
func Plan(in Input) ([]plan.Step, error) {
	ds := in.Dataset
	if !ds.Historize {
		return nil, nil
	}
	if len(ds.BusinessKeys) == 0 {
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "historization requires a business key"}
	}

	cols := plan.OrderedColumns(ds)
	hasHash := false
	for _, c := range cols {
		if c.Name == core.RowHashColumn {
			hasHash = true
			break
		}
	}
	if !hasHash {
		return nil, &core.LineageIncompleteError{
			Dataset: ds.Name,
			Column:  core.RowHashColumn,
			Reason:  "historization requires a row hash; historize a rawcore table",
		}
	}

	hist, current := ds.HistoryTable(), ds.Table()
	keys := ds.BusinessKeys
	names := plan.ColumnNames(cols)

	var steps []plan.Step
	if !in.HistoryExists {
		steps = append(steps, plan.Step{
			Phase:     plan.PhaseEvolve,
			Statement: &plan.CreateTable{Table: hist, Columns: Columns(ds)},
		})
	}

	return append(steps,
		plan.Step{Phase: plan.PhaseHistoryCloseChanged, Statement: &plan.CloseVersions{
			History: hist, Current: current, Keys: keys, HashColumn: core.RowHashColumn,
			Reason: plan.StateChanged, At: in.At,
		}},
		plan.Step{Phase: plan.PhaseHistoryCloseDeleted, Statement: &plan.CloseVersions{
			History: hist, Current: current, Keys: keys, HashColumn: core.RowHashColumn,
			Reason: plan.StateDeleted, At: expr.Clone(in.At),
		}},
		plan.Step{Phase: plan.PhaseHistoryInsertChanged, Statement: &plan.InsertVersions{
			History: hist, Current: current, Keys: keys, Columns: names,
			State: plan.StateChanged, At: expr.Clone(in.At), RunID: in.RunID,
		}},
		plan.Step{Phase: plan.PhaseHistoryInsertNew, Statement: &plan.InsertVersions{
			History: hist, Current: current, Keys: keys, Columns: names,
			State: plan.StateNew, At: expr.Clone(in.At), RunID: in.RunID,
		}},
	), nil
}

// Columns returns the column definitions of a dataset's history table: the
// current table's columns followed by the version columns.
func Columns(ds *core.Dataset) []plan.ColumnDef {
	cols := plan.OrderedColumns(ds)
	defs := make([]plan.ColumnDef, 0, len(cols)+4)
	for _, c := range cols {
		defs = append(defs, plan.ColumnDef{Name: c.Name, Type: c.Type})
	}
	return append(defs,
		plan.ColumnDef{Name: plan.ColVersionStartedAt, Type: TimestampType},
		plan.ColumnDef{Name: plan.ColVersionEndedAt, Type: TimestampType},
		plan.ColumnDef{Name: plan.ColVersionState, Type: StateType},
		plan.ColumnDef{Name: plan.ColLoadRunID, Type: RunIDType},
	)
}
