// Package incremental plans the load statements of a dataset: full refresh,
// merge (native MERGE or UPDATE plus INSERT fallback) and delete detection.
//
// Plans are pure: they depend only on the dataset, its built query and the
// dialect capabilities, and never touch a connection.
package incremental

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Input describes one dataset load.
type Input struct {
	Dataset      *core.Dataset
	Query        *plan.Query
	Dialect      string
	Capabilities core.Capabilities

	// TargetExists is false on the first run of a merge dataset, which is
	// then loaded in full.
	TargetExists bool
}

// Plan returns the load steps of a dataset in execution order.
//
// Delete detection is validated before anything else, so a dataset asking
// for it on an unsupporting dialect fails at plan time even on its first run.
func Plan(in Input) ([]plan.Step, error) {
	ds := in.Dataset
	if ds.IsFullRefresh() {
		return fullRefresh(in), nil
	}

	keys, err := NaturalKeys(ds)
	if err != nil {
		return nil, err
	}
	if ds.HandleDeletes && !in.Capabilities.SupportsDeleteDetection {
		return nil, &core.DialectCapabilityError{Dialect: in.Dialect, Capability: "delete detection", Dataset: ds.Name}
	}

	if !in.TargetExists {
		return []plan.Step{{
			Phase:     plan.PhaseLoad,
			Statement: &plan.CreateTableAs{Table: ds.Table(), Query: in.Query.Root},
		}}, nil
	}

	steps, err := merge(in, keys)
	if err != nil {
		return nil, err
	}
	if ds.HandleDeletes {
		steps = append(steps, plan.Step{
			Phase:     plan.PhaseDelete,
			Statement: &plan.DeleteMissing{Table: ds.Table(), Source: in.Query.Root, Keys: keys},
		})
	}
	return steps, nil
}

// NaturalKeys returns the merge keys of a dataset: its business keys, in
// declared order. A dataset without business keys cannot be merged.
func NaturalKeys(ds *core.Dataset) ([]string, error) {
	if len(ds.BusinessKeys) == 0 {
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "no natural key resolvable for merge"}
	}
	keys := make([]string, len(ds.BusinessKeys))
	copy(keys, ds.BusinessKeys)
	return keys, nil
}

func fullRefresh(in Input) []plan.Step {
	ds := in.Dataset
	replace := in.Capabilities.SupportsCreateOrReplace
	view := ds.Materialization == core.MaterializationView

	var steps []plan.Step
	if !replace {
		steps = append(steps, plan.Step{
			Phase:     plan.PhaseLoad,
			Statement: &plan.DropTable{Table: ds.Table(), IfExists: true, View: view},
		})
	}

	var create plan.Statement = &plan.CreateTableAs{Table: ds.Table(), Query: in.Query.Root, Replace: replace}
	if view {
		create = &plan.CreateView{View: ds.Table(), Query: in.Query.Root, Replace: replace}
	}
	return append(steps, plan.Step{Phase: plan.PhaseLoad, Statement: create})
}

func merge(in Input, keys []string) ([]plan.Step, error) {
	ds := in.Dataset
	insert := plan.ColumnNames(in.Query.Columns)
	update := updateColumns(ds, insert)

	if in.Capabilities.SupportsMerge {
		return []plan.Step{{
			Phase: plan.PhaseMerge,
			Statement: &plan.Merge{
				Table:         ds.Table(),
				Source:        in.Query.Root,
				Keys:          keys,
				UpdateColumns: update,
				InsertColumns: insert,
			},
		}}, nil
	}

	if len(update) > 0 && !in.Capabilities.SupportsUpdateFrom {
		return nil, &core.DialectCapabilityError{Dialect: in.Dialect, Capability: "merge", Dataset: ds.Name}
	}

	var steps []plan.Step
	if len(update) > 0 {
		steps = append(steps, plan.Step{
			Phase:     plan.PhaseMerge,
			Statement: &plan.UpdateFrom{Table: ds.Table(), Source: in.Query.Root, Keys: keys, Columns: update},
		})
	}
	return append(steps, plan.Step{
		Phase:     plan.PhaseMerge,
		Statement: &plan.InsertMissing{Table: ds.Table(), Source: in.Query.Root, Keys: keys, Columns: insert},
	}), nil
}

// updateColumns returns the columns a matched row takes from the source:
// everything except business keys and surrogate keys, which are derived
// from them.
func updateColumns(ds *core.Dataset, columns []string) []string {
	var out []string
	for _, name := range columns {
		if ds.IsBusinessKey(name) {
			continue
		}
		if c, ok := ds.Column(name); ok && c.Role == core.RoleSurrogateKey {
			continue
		}
		out = append(out, name)
	}
	return out
}
