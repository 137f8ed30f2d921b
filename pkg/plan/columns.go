package plan

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// RowHashType is the declared type of the generated row hash column.
const RowHashType = "VARCHAR(64)"

// NeedsRowHash reports whether d carries a generated row hash: rawcore tables
// that merge or historize.
func NeedsRowHash(d *core.Dataset) bool {
	if d.Layer != core.LayerRawcore || d.Materialization == core.MaterializationView {
		return false
	}
	return d.IncrementalStrategy == core.StrategyMerge || d.Historize
}

// EffectiveColumns returns the declared columns plus generated technical
// columns. The dataset itself is never modified.
func EffectiveColumns(d *core.Dataset) []core.Column {
	cols := make([]core.Column, len(d.Columns), len(d.Columns)+1)
	copy(cols, d.Columns)
	if NeedsRowHash(d) {
		if _, ok := d.Column(core.RowHashColumn); !ok {
			cols = append(cols, core.Column{
				Name: core.RowHashColumn,
				Type: RowHashType,
				Role: core.RoleTechnical,
			})
		}
	}
	return cols
}

// OrderedColumns returns the effective columns in output order: surrogate
// keys, foreign keys, business keys (declared order), integrated source
// columns, computed columns, then technical columns. Declaration order is
// kept within each group.
func OrderedColumns(d *core.Dataset) []core.Column {
	cols := EffectiveColumns(d)
	groups := make([][]core.Column, 6)

	for _, bk := range d.BusinessKeys {
		for _, c := range cols {
			if strings.EqualFold(c.Name, bk) && !c.IsKey() {
				groups[2] = append(groups[2], c)
				break
			}
		}
	}

	for _, c := range cols {
		switch {
		case c.Role == core.RoleSurrogateKey:
			groups[0] = append(groups[0], c)
		case c.Role == core.RoleForeignKey:
			groups[1] = append(groups[1], c)
		case d.IsBusinessKey(c.Name):
			// placed above in business-key order
		case c.Role == core.RoleTechnical:
			groups[5] = append(groups[5], c)
		case c.Expression != "":
			groups[4] = append(groups[4], c)
		default:
			groups[3] = append(groups[3], c)
		}
	}

	out := make([]core.Column, 0, len(cols))
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// ColumnNames returns the names of cols.
func ColumnNames(cols []core.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
