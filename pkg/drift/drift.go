// Package drift compares declared dataset schemas against the physical
// warehouse schema and plans the DDL that evolves one into the other.
//
// Planning runs as a preflight before any statement of a run executes.
// Widening changes are applied with ALTER COLUMN when the dialect supports
// it, otherwise by rebuilding the table under a temporary name and swapping
// it into place. Narrowing and incompatible changes block, as does a rename
// whose former and current names both exist physically.
package drift

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/history"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// RebuildSuffix names the temporary table of a rebuild-and-swap.
const RebuildSuffix = "__leapmeta_rebuild"

// Action is the remediation chosen for a finding.
type Action string

// Actions.
const (
	ActionNone         Action = "none"
	ActionRenameTable  Action = "rename_table"
	ActionRenameColumn Action = "rename_column"
	ActionAddColumn    Action = "add_column"
	ActionAlterType    Action = "alter_type"
	ActionRebuild      Action = "rebuild"
	ActionBlock        Action = "block"
)

// Finding is one detected difference between declared and physical schema.
type Finding struct {
	Table    core.TableRef
	Column   string
	Declared string
	Physical string
	Change   Change
	Action   Action
}

// Input describes one dataset to check.
type Input struct {
	Dataset *core.Dataset

	// Schemas holds introspected metadata for the tables returned by Tables.
	// A missing entry means the table does not exist.
	Schemas core.Schemas

	Dialect dialect.Dialect
}

// Result is the evolution plan of one dataset.
type Result struct {
	Steps    []plan.Step
	Findings []Finding

	// TargetExists and HistoryExists report whether the tables exist once
	// the planned renames have run.
	TargetExists  bool
	HistoryExists bool
}

// Tables lists every physical table Plan needs introspected for ds.
func Tables(ds *core.Dataset) []core.TableRef {
	refs := []core.TableRef{ds.Table()}
	for _, f := range ds.FormerNames {
		refs = append(refs, core.TableRef{Schema: ds.Schema, Name: f})
	}
	if !ds.Historize {
		return refs
	}
	refs = append(refs, ds.HistoryTable())
	for _, f := range ds.FormerNames {
		refs = append(refs, historyRef(ds.Schema, f))
	}
	return refs
}

func historyRef(schema, name string) core.TableRef {
	return (&core.Dataset{Schema: schema, Name: name}).HistoryTable()
}

// Plan compares the dataset's declared schema with in.Schemas. Blocking
// findings are returned joined as *core.TypeDriftBlockingError values; the
// partial result is returned alongside so callers can report every finding.
func Plan(in Input) (*Result, error) {
	ds := in.Dataset
	res := &Result{}

	table := tablePlan{
		dataset: ds,
		target:  ds.Table(),
		formers: ds.FormerNames,
		columns: plan.OrderedColumns(ds),
		exempt:  ds.IsFullRefresh(),
		view:    ds.Materialization == core.MaterializationView,
		schemas: in.Schemas,
		dialect: in.Dialect,
	}
	var errTable error
	res.TargetExists, errTable = table.run(res)

	var errHist error
	if ds.Historize {
		hist := tablePlan{
			dataset:    ds,
			target:     ds.HistoryTable(),
			formers:    ds.FormerNames,
			columns:    historyColumns(ds),
			schemas:    in.Schemas,
			dialect:    in.Dialect,
			historyRef: true,
		}
		res.HistoryExists, errHist = hist.run(res)
	}

	return res, errors.Join(errTable, errHist)
}

// historyColumns returns the history table columns as declared columns, so
// former names of data columns carry over.
func historyColumns(ds *core.Dataset) []core.Column {
	defs := history.Columns(ds)
	cols := make([]core.Column, len(defs))
	for i, def := range defs {
		if c, ok := ds.Column(def.Name); ok {
			cols[i] = *c
		}
		cols[i].Name = def.Name
		cols[i].Type = def.Type
	}
	return cols
}

type tablePlan struct {
	dataset    *core.Dataset
	target     core.TableRef
	formers    []string
	columns    []core.Column
	exempt     bool
	view       bool
	schemas    core.Schemas
	dialect    dialect.Dialect
	historyRef bool
}

func (p *tablePlan) formerRef(name string) core.TableRef {
	if p.historyRef {
		return historyRef(p.target.Schema, name)
	}
	return core.TableRef{Schema: p.target.Schema, Name: name}
}

func (p *tablePlan) block(res *Result, column string, kind core.DriftKind, declared, physical string, change Change) error {
	res.Findings = append(res.Findings, Finding{
		Table: p.target, Column: column, Declared: declared, Physical: physical, Change: change, Action: ActionBlock,
	})
	return &core.TypeDriftBlockingError{
		Dataset: p.dataset.Name, Column: column, Kind: kind, Declared: declared, Physical: physical,
	}
}

func (p *tablePlan) emit(res *Result, s plan.Statement) {
	res.Steps = append(res.Steps, plan.Step{Phase: plan.PhaseEvolve, Statement: s})
}

// run plans one table and reports whether it exists after evolution.
func (p *tablePlan) run(res *Result) (bool, error) {
	meta := p.schemas[p.target]

	var found []core.TableRef
	for _, f := range p.formers {
		ref := p.formerRef(f)
		if _, ok := p.schemas[ref]; ok {
			found = append(found, ref)
		}
	}
	switch {
	case meta != nil && len(found) > 0:
		return true, p.block(res, "", core.DriftRenameConflict, p.target.Name, found[0].Name, Incompatible)
	case len(found) > 1:
		return false, p.block(res, "", core.DriftRenameConflict, found[0].Name, found[1].Name, Incompatible)
	case len(found) == 1:
		if p.view {
			p.emit(res, &plan.DropTable{Table: found[0], IfExists: true, View: true})
			return false, nil
		}
		res.Findings = append(res.Findings, Finding{
			Table: p.target, Declared: p.target.Name, Physical: found[0].Name, Action: ActionRenameTable,
		})
		p.emit(res, &plan.RenameTable{Table: found[0], NewName: p.target.Name})
		meta = p.schemas[found[0]]
	case meta == nil:
		return false, nil
	}

	// Views are recreated on every run.
	if p.view {
		return true, nil
	}
	return true, p.columnsRun(res, meta)
}

func (p *tablePlan) columnsRun(res *Result, meta *core.TableMetadata) error {
	var (
		errs  []error
		casts = map[string]string{}
		// physical column name -> name after renames
		renamed = map[string]string{}
		added   []string
	)

	for _, c := range p.columns {
		phys, ok := meta.Column(c.Name)

		var former *core.PhysicalColumn
		for _, f := range c.FormerNames {
			if fc, fok := meta.Column(f); fok {
				former = fc
				break
			}
		}

		switch {
		case ok && former != nil:
			errs = append(errs, p.block(res, c.Name, core.DriftRenameConflict, c.Name, former.Name, Incompatible))
			continue
		case former != nil:
			res.Findings = append(res.Findings, Finding{
				Table: p.target, Column: c.Name, Declared: c.Name, Physical: former.Name, Action: ActionRenameColumn,
			})
			if !p.exempt {
				p.emit(res, &plan.RenameColumn{Table: p.target, Column: former.Name, NewName: c.Name})
				renamed[former.Name] = c.Name
			}
			phys = former
		case !ok:
			res.Findings = append(res.Findings, Finding{
				Table: p.target, Column: c.Name, Declared: c.Type, Action: ActionAddColumn,
			})
			if !p.exempt {
				p.emit(res, &plan.AddColumn{Table: p.target, Column: c.Name, Type: c.Type})
				added = append(added, c.Name)
			}
			continue
		}

		change := Compare(Canonicalize(phys.Type), Canonicalize(p.dialect.MapType(c.Type)))
		switch change {
		case Equivalent:
			continue
		case Widening:
			if p.exempt {
				res.Findings = append(res.Findings, Finding{
					Table: p.target, Column: c.Name, Declared: c.Type, Physical: phys.Type, Change: change, Action: ActionNone,
				})
				continue
			}
			if p.dialect.Capabilities().SupportsAlterColumnType {
				res.Findings = append(res.Findings, Finding{
					Table: p.target, Column: c.Name, Declared: c.Type, Physical: phys.Type, Change: change, Action: ActionAlterType,
				})
				p.emit(res, &plan.AlterColumnType{Table: p.target, Column: c.Name, Type: c.Type})
				continue
			}
			res.Findings = append(res.Findings, Finding{
				Table: p.target, Column: c.Name, Declared: c.Type, Physical: phys.Type, Change: change, Action: ActionRebuild,
			})
			casts[c.Name] = c.Type
		default:
			if p.exempt {
				res.Findings = append(res.Findings, Finding{
					Table: p.target, Column: c.Name, Declared: c.Type, Physical: phys.Type, Change: change, Action: ActionNone,
				})
				continue
			}
			kind := core.DriftIncompatible
			if change == Narrowing {
				kind = core.DriftNarrowing
			}
			errs = append(errs, p.block(res, c.Name, kind, c.Type, phys.Type, change))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if len(casts) > 0 {
		p.rebuild(res, meta, renamed, added, casts)
	}
	return nil
}

// rebuild copies the table into a temporary table with the widened column
// types, drops the original and renames the copy into place. It runs after
// renames and added columns, so it projects the evolved column names.
func (p *tablePlan) rebuild(res *Result, meta *core.TableMetadata, renamed map[string]string, added []string, casts map[string]string) {
	tmp := core.TableRef{Schema: p.target.Schema, Name: p.target.Name + RebuildSuffix}

	names := make([]string, 0, len(meta.Columns)+len(added))
	for _, pc := range meta.Columns {
		name := pc.Name
		if to, ok := renamed[pc.Name]; ok {
			name = to
		}
		names = append(names, name)
	}
	names = append(names, added...)

	sel := &plan.Select{From: &plan.TableSource{Table: p.target}}
	for _, name := range names {
		if typ, ok := casts[name]; ok {
			sel.Items = append(sel.Items, plan.SelectItem{
				Expr:  &expr.Cast{Expr: expr.Col(name), Type: typ},
				Alias: name,
			})
			continue
		}
		sel.Items = append(sel.Items, plan.SelectItem{Expr: expr.Col(name)})
	}

	p.emit(res, &plan.DropTable{Table: tmp, IfExists: true})
	p.emit(res, &plan.CreateTableAs{Table: tmp, Query: sel})
	p.emit(res, &plan.DropTable{Table: p.target})
	p.emit(res, &plan.RenameTable{Table: tmp, NewName: p.target.Name})
}

// Summary renders a finding for logs and CLI output.
func (f Finding) Summary() string {
	switch f.Action {
	case ActionRenameTable:
		return fmt.Sprintf("%s: rename table %s -> %s", f.Table, f.Physical, f.Declared)
	case ActionRenameColumn:
		return fmt.Sprintf("%s: rename column %s -> %s", f.Table, f.Physical, f.Declared)
	case ActionAddColumn:
		return fmt.Sprintf("%s: add column %s %s", f.Table, f.Column, f.Declared)
	case ActionBlock:
		if f.Column == "" {
			return fmt.Sprintf("%s: blocked, both %s and %s exist", f.Table, f.Declared, f.Physical)
		}
		return fmt.Sprintf("%s.%s: blocked %s change %s -> %s", f.Table, f.Column, f.Change, f.Physical, f.Declared)
	}
	return fmt.Sprintf("%s.%s: %s change %s -> %s (%s)", f.Table, f.Column, f.Change, f.Physical, f.Declared, f.Action)
}
