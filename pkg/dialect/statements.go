package dialect

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Aliases used inside rendered DML.
const (
	targetAlias  = "t"
	sourceAlias  = "s"
	historyAlias = "h"
)

// RenderStatement renders a DDL or DML statement node.
// Statements requiring a missing capability fail with *core.DialectCapabilityError.
func (d *Standard) RenderStatement(s plan.Statement) (string, error) {
	if d.override != nil {
		sql, handled, err := d.override(d, s)
		if err != nil {
			return "", err
		}
		if handled {
			return sql + d.cfg.Syntax.Terminator, nil
		}
	}

	sql, err := d.renderStatement(s)
	if err != nil {
		return "", err
	}
	return sql + d.cfg.Syntax.Terminator, nil
}

func (d *Standard) renderStatement(s plan.Statement) (string, error) {
	syn := d.cfg.Syntax
	caps := d.cfg.Capabilities

	switch st := s.(type) {
	case *plan.CreateSchema:
		return fmt.Sprintf(syn.CreateSchema, d.RenderIdentifier(st.Schema)), nil

	case *plan.CreateTableAs:
		q, err := d.RenderSelect(st.Query)
		if err != nil {
			return "", err
		}
		if st.Replace {
			if !caps.SupportsCreateOrReplace {
				return "", d.unsupported("create or replace")
			}
			return fmt.Sprintf(syn.CreateOrReplaceTableAs, d.RenderTableIdentifier(st.Table), q), nil
		}
		return fmt.Sprintf(syn.CreateTableAs, d.RenderTableIdentifier(st.Table), q), nil

	case *plan.CreateView:
		q, err := d.RenderSelect(st.Query)
		if err != nil {
			return "", err
		}
		if st.Replace {
			if !caps.SupportsCreateOrReplace {
				return "", d.unsupported("create or replace")
			}
			return fmt.Sprintf(syn.CreateOrReplaceView, d.RenderTableIdentifier(st.View), q), nil
		}
		return fmt.Sprintf("CREATE VIEW %s AS\n%s", d.RenderTableIdentifier(st.View), q), nil

	case *plan.CreateTable:
		if len(st.Columns) == 0 {
			return "", fmt.Errorf("create table %s without columns", st.Table)
		}
		cols := make([]string, len(st.Columns))
		for i, c := range st.Columns {
			cols[i] = "    " + d.RenderIdentifier(c.Name) + " " + d.MapType(c.Type)
		}
		head := "CREATE TABLE "
		if st.IfNotExists {
			head += "IF NOT EXISTS "
		}
		return head + d.RenderTableIdentifier(st.Table) + " (\n" + strings.Join(cols, ",\n") + "\n)", nil

	case *plan.DropTable:
		kind := "TABLE"
		if st.View {
			kind = "VIEW"
		}
		if st.IfExists {
			return fmt.Sprintf("DROP %s IF EXISTS %s", kind, d.RenderTableIdentifier(st.Table)), nil
		}
		return fmt.Sprintf("DROP %s %s", kind, d.RenderTableIdentifier(st.Table)), nil

	case *plan.Merge:
		if !caps.SupportsMerge {
			return "", d.unsupported("merge")
		}
		return d.renderMerge(st)

	case *plan.UpdateFrom:
		if !caps.SupportsUpdateFrom {
			return "", d.unsupported("update from")
		}
		return d.renderUpdateFrom(st)

	case *plan.InsertMissing:
		return d.renderInsertMissing(st)

	case *plan.DeleteMissing:
		if !caps.SupportsDeleteDetection {
			return "", d.unsupported("delete detection")
		}
		return d.renderDeleteMissing(st)

	case *plan.CloseVersions:
		return d.renderCloseVersions(st)

	case *plan.InsertVersions:
		return d.renderInsertVersions(st)

	case *plan.AlterColumnType:
		if !caps.SupportsAlterColumnType {
			return "", d.unsupported("alter column type")
		}
		return fmt.Sprintf(syn.AlterColumnType, d.RenderTableIdentifier(st.Table), d.RenderIdentifier(st.Column), d.MapType(st.Type)), nil

	case *plan.AddColumn:
		return fmt.Sprintf(syn.AddColumn, d.RenderTableIdentifier(st.Table), d.RenderIdentifier(st.Column), d.MapType(st.Type)), nil

	case *plan.RenameTable:
		newName := d.RenderIdentifier(st.NewName)
		if syn.RenameQualified {
			newName = d.RenderTableIdentifier(core.TableRef{Schema: st.Table.Schema, Name: st.NewName})
		}
		return fmt.Sprintf(syn.RenameTable, d.RenderTableIdentifier(st.Table), newName), nil

	case *plan.RenameColumn:
		return fmt.Sprintf(syn.RenameColumn, d.RenderTableIdentifier(st.Table), d.RenderIdentifier(st.Column), d.RenderIdentifier(st.NewName)), nil
	}
	return "", fmt.Errorf("unsupported statement %T", s)
}

// keyJoin renders l.k1 = r.k1 AND l.k2 = r.k2.
func (d *Standard) keyJoin(left, right string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		id := d.RenderIdentifier(k)
		parts[i] = left + "." + id + " = " + right + "." + id
	}
	return strings.Join(parts, " AND ")
}

func (d *Standard) identList(names []string, qualifier string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		if qualifier != "" {
			parts[i] = qualifier + "." + d.RenderIdentifier(n)
		} else {
			parts[i] = d.RenderIdentifier(n)
		}
	}
	return strings.Join(parts, ", ")
}

func (d *Standard) assignments(cols []string, qualifier string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		id := d.RenderIdentifier(c)
		parts[i] = id + " = " + qualifier + "." + id
	}
	return strings.Join(parts, ",\n    ")
}

func (d *Standard) renderMerge(m *plan.Merge) (string, error) {
	if len(m.Keys) == 0 {
		return "", fmt.Errorf("merge into %s without keys", m.Table)
	}
	src, err := d.subquery(m.Source, sourceAlias)
	if err != nil {
		return "", err
	}
	t, s := d.RenderIdentifier(targetAlias), d.RenderIdentifier(sourceAlias)

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS %s\nUSING %s\nON %s",
		d.RenderTableIdentifier(m.Table), t, src, d.keyJoin(t, s, m.Keys))
	if len(m.UpdateColumns) > 0 {
		fmt.Fprintf(&b, "\nWHEN MATCHED THEN UPDATE SET\n    %s", d.assignments(m.UpdateColumns, s))
	}
	if len(m.InsertColumns) > 0 {
		fmt.Fprintf(&b, "\nWHEN NOT MATCHED THEN INSERT (%s)\n    VALUES (%s)",
			d.identList(m.InsertColumns, ""), d.identList(m.InsertColumns, s))
	}
	return b.String(), nil
}

func (d *Standard) renderUpdateFrom(u *plan.UpdateFrom) (string, error) {
	if len(u.Keys) == 0 || len(u.Columns) == 0 {
		return "", fmt.Errorf("update of %s needs keys and columns", u.Table)
	}
	src, err := d.subquery(u.Source, sourceAlias)
	if err != nil {
		return "", err
	}
	t, s := d.RenderIdentifier(targetAlias), d.RenderIdentifier(sourceAlias)
	return fmt.Sprintf("UPDATE %s AS %s SET\n    %s\nFROM %s\nWHERE %s",
		d.RenderTableIdentifier(u.Table), t, d.assignments(u.Columns, s), src, d.keyJoin(t, s, u.Keys)), nil
}

func (d *Standard) renderInsertMissing(ins *plan.InsertMissing) (string, error) {
	if len(ins.Keys) == 0 {
		return "", fmt.Errorf("insert into %s without keys", ins.Table)
	}
	src, err := d.subquery(ins.Source, sourceAlias)
	if err != nil {
		return "", err
	}
	t, s := d.RenderIdentifier(targetAlias), d.RenderIdentifier(sourceAlias)
	table := d.RenderTableIdentifier(ins.Table)
	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s\nWHERE NOT EXISTS (\n    SELECT 1 FROM %s AS %s WHERE %s\n)",
		table, d.identList(ins.Columns, ""), d.identList(ins.Columns, s), src,
		table, t, d.keyJoin(t, s, ins.Keys)), nil
}

func (d *Standard) renderDeleteMissing(del *plan.DeleteMissing) (string, error) {
	if len(del.Keys) == 0 {
		return "", fmt.Errorf("delete from %s without keys", del.Table)
	}
	src, err := d.subquery(del.Source, sourceAlias)
	if err != nil {
		return "", err
	}
	table := d.RenderTableIdentifier(del.Table)
	return fmt.Sprintf("DELETE FROM %s\nWHERE NOT EXISTS (\n    SELECT 1 FROM %s\n    WHERE %s\n)",
		table, indentTail(src), d.keyJoin(d.RenderIdentifier(sourceAlias), table, del.Keys)), nil
}

func (d *Standard) renderCloseVersions(c *plan.CloseVersions) (string, error) {
	if len(c.Keys) == 0 {
		return "", fmt.Errorf("close versions of %s without keys", c.History)
	}
	at, err := d.RenderExpression(c.At)
	if err != nil {
		return "", err
	}
	hist := d.RenderTableIdentifier(c.History)
	s := d.RenderIdentifier(sourceAlias)
	match := d.keyJoin(s, hist, c.Keys)

	var cond string
	switch c.Reason {
	case plan.StateChanged:
		hash := d.RenderIdentifier(c.HashColumn)
		cond = fmt.Sprintf("EXISTS (\n    SELECT 1 FROM %s AS %s\n    WHERE %s AND %s.%s <> %s.%s\n)",
			d.RenderTableIdentifier(c.Current), s, match, s, hash, hist, hash)
	case plan.StateDeleted:
		cond = fmt.Sprintf("NOT EXISTS (\n    SELECT 1 FROM %s AS %s\n    WHERE %s\n)",
			d.RenderTableIdentifier(c.Current), s, match)
	default:
		return "", fmt.Errorf("invalid close reason %q", c.Reason)
	}

	return fmt.Sprintf("UPDATE %s SET\n    %s = %s,\n    %s = %s\nWHERE %s IS NULL\n  AND %s",
		hist,
		d.RenderIdentifier(plan.ColVersionEndedAt), at,
		d.RenderIdentifier(plan.ColVersionState), d.renderLiteral(expr.Str(string(c.Reason))),
		d.RenderIdentifier(plan.ColVersionEndedAt),
		cond), nil
}

func (d *Standard) renderInsertVersions(iv *plan.InsertVersions) (string, error) {
	if len(iv.Keys) == 0 {
		return "", fmt.Errorf("insert versions into %s without keys", iv.History)
	}
	at, err := d.RenderExpression(iv.At)
	if err != nil {
		return "", err
	}
	hist := d.RenderTableIdentifier(iv.History)
	s, h := d.RenderIdentifier(sourceAlias), d.RenderIdentifier(historyAlias)
	ended := d.RenderIdentifier(plan.ColVersionEndedAt)
	state := d.RenderIdentifier(plan.ColVersionState)

	columns := append(append([]string{}, iv.Columns...),
		plan.ColVersionStartedAt, plan.ColVersionEndedAt, plan.ColVersionState, plan.ColLoadRunID)
	values := d.identList(iv.Columns, s) + ", " + strings.Join([]string{
		at,
		"NULL",
		d.renderLiteral(expr.Str(string(iv.State))),
		d.renderLiteral(expr.Str(iv.RunID)),
	}, ", ")

	noOpen := fmt.Sprintf("NOT EXISTS (\n    SELECT 1 FROM %s AS %s\n    WHERE %s AND %s.%s IS NULL\n)",
		hist, h, d.keyJoin(h, s, iv.Keys), h, ended)

	var where string
	switch iv.State {
	case plan.StateNew:
		where = noOpen
	case plan.StateChanged:
		where = fmt.Sprintf("EXISTS (\n    SELECT 1 FROM %s AS %s\n    WHERE %s AND %s.%s = %s AND %s.%s = %s\n)\n  AND %s",
			hist, h, d.keyJoin(h, s, iv.Keys),
			h, state, d.renderLiteral(expr.Str(string(plan.StateChanged))),
			h, ended, at,
			noOpen)
	default:
		return "", fmt.Errorf("invalid version state %q", iv.State)
	}

	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s AS %s\nWHERE %s",
		hist, d.identList(columns, ""), values,
		d.RenderTableIdentifier(iv.Current), s, where), nil
}

// indentTail indents every line after the first.
func indentTail(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
