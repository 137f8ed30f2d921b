package plan

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dsl"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/hashing"
)

// Aliases used by multi-upstream plans.
const (
	UnionAlias  = "src"
	RankedAlias = "ranked"
	RankColumn  = "_rn"
)

// Query is the logical plan of one dataset.
type Query struct {
	Dataset *core.Dataset
	Root    Node
	Columns []core.Column
}

// Builder assembles logical plans from catalog lineage.
// It is stateless apart from its inputs and safe for concurrent use.
type Builder struct {
	catalog *core.Catalog
	pepper  string
}

// NewBuilder creates a builder. The pepper is an opaque string appended to
// surrogate and foreign key hashes.
func NewBuilder(catalog *core.Catalog, pepper string) *Builder {
	return &Builder{catalog: catalog, pepper: pepper}
}

// Build produces the query of ds:
//   - a single upstream yields a Select over a TableSource
//   - several upstreams in identity mode yield a flat Union
//   - several upstreams otherwise are unioned, ranked with ROW_NUMBER over the
//     business key by recency, and filtered to rank 1
func (b *Builder) Build(ds *core.Dataset) (*Query, error) {
	cols := OrderedColumns(ds)

	parsed := make(map[string]expr.Expr)
	for _, c := range cols {
		if c.Expression == "" {
			continue
		}
		e, err := dsl.ParseColumn(ds.Name, c.Name, c.Expression)
		if err != nil {
			return nil, err
		}
		parsed[strings.ToLower(c.Name)] = e
	}

	switch len(ds.Upstreams) {
	case 0:
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "no upstream lineage"}
	case 1:
		sel, err := b.branch(ds, cols, parsed, ds.Upstreams[0])
		if err != nil {
			return nil, err
		}
		return &Query{Dataset: ds, Root: sel, Columns: cols}, nil
	}

	union := &Union{All: true}
	for _, edge := range ds.Upstreams {
		if edge.Role != core.EdgeUnion {
			return nil, &core.LineageIncompleteError{
				Dataset: ds.Name,
				Reason:  fmt.Sprintf("upstream %s must use role union when combined with other upstreams", edge.UpstreamName()),
			}
		}
		sel, err := b.branch(ds, cols, parsed, edge)
		if err != nil {
			return nil, err
		}
		union.Selects = append(union.Selects, sel)
	}

	if ds.SourceIdentityColumn != "" {
		return &Query{Dataset: ds, Root: union, Columns: cols}, nil
	}

	root, err := rankLatest(ds, cols, union)
	if err != nil {
		return nil, err
	}
	return &Query{Dataset: ds, Root: root, Columns: cols}, nil
}

func rankLatest(ds *core.Dataset, cols []core.Column, union *Union) (Node, error) {
	if len(ds.BusinessKeys) == 0 {
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "union without source identity requires a business key"}
	}
	if ds.RecencyColumn == "" {
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "union without source identity requires a recency column"}
	}
	if _, ok := ds.Column(ds.RecencyColumn); !ok {
		return nil, &core.LineageIncompleteError{Dataset: ds.Name, Column: ds.RecencyColumn, Reason: "recency column is not an output column"}
	}

	rn := &expr.WindowFunction{
		Name:    "ROW_NUMBER",
		OrderBy: []expr.OrderItem{{Expr: expr.QCol(UnionAlias, ds.RecencyColumn), Desc: true}},
	}
	for _, bk := range ds.BusinessKeys {
		rn.PartitionBy = append(rn.PartitionBy, expr.QCol(UnionAlias, bk))
	}

	ranked := &Select{From: &SubquerySource{Query: union, Alias: UnionAlias}}
	outer := &Select{
		From:  &SubquerySource{Query: ranked, Alias: RankedAlias},
		Where: expr.Eq(expr.QCol(RankedAlias, RankColumn), expr.Num("1")),
	}
	for _, c := range cols {
		ranked.Items = append(ranked.Items, SelectItem{Expr: expr.QCol(UnionAlias, c.Name), Alias: c.Name})
		outer.Items = append(outer.Items, SelectItem{Expr: expr.QCol(RankedAlias, c.Name), Alias: c.Name})
	}
	ranked.Items = append(ranked.Items, SelectItem{Expr: rn, Alias: RankColumn})
	return outer, nil
}

// branch builds the Select reading one upstream edge.
func (b *Builder) branch(ds *core.Dataset, cols []core.Column, parsed map[string]expr.Expr, edge core.Edge) (*Select, error) {
	table, available, err := b.upstream(ds, edge)
	if err != nil {
		return nil, err
	}

	r := &branchResolver{
		builder:   b,
		ds:        ds,
		edge:      edge,
		parsed:    parsed,
		available: available,
		columns:   make(map[string]core.Column, len(cols)),
		done:      make(map[string]expr.Expr, len(cols)),
		visiting:  make(map[string]bool),
	}
	for _, c := range cols {
		r.columns[strings.ToLower(c.Name)] = c
	}

	sel := &Select{From: &TableSource{Table: table}}
	for _, c := range cols {
		e, err := r.resolve(c.Name)
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, SelectItem{Expr: e, Alias: c.Name})
	}
	return sel, nil
}

// upstream returns the table an edge reads and the set of columns it is
// known to provide (nil when unknown).
func (b *Builder) upstream(ds *core.Dataset, edge core.Edge) (core.TableRef, map[string]bool, error) {
	if edge.Dataset != "" {
		up, ok := b.catalog.Get(edge.Dataset)
		if !ok {
			return core.TableRef{}, nil, &core.LineageIncompleteError{
				Dataset: ds.Name,
				Reason:  fmt.Sprintf("upstream dataset %q not found", edge.Dataset),
			}
		}
		available := make(map[string]bool)
		for _, c := range EffectiveColumns(up) {
			available[strings.ToLower(c.Name)] = true
		}
		return up.Table(), available, nil
	}

	if edge.Source == nil {
		return core.TableRef{}, nil, &core.LineageIncompleteError{Dataset: ds.Name, Reason: "upstream edge has neither dataset nor source"}
	}
	if len(edge.SourceColumns) == 0 {
		return *edge.Source, nil, nil
	}
	available := make(map[string]bool, len(edge.SourceColumns))
	for _, c := range edge.SourceColumns {
		available[strings.ToLower(c.Name)] = true
	}
	return *edge.Source, available, nil
}

// branchResolver computes the expression of every output column for one branch.
type branchResolver struct {
	builder   *Builder
	ds        *core.Dataset
	edge      core.Edge
	parsed    map[string]expr.Expr
	available map[string]bool
	columns   map[string]core.Column
	done      map[string]expr.Expr
	visiting  map[string]bool
}

func (r *branchResolver) resolve(name string) (expr.Expr, error) {
	key := strings.ToLower(name)
	if e, ok := r.done[key]; ok {
		return expr.Clone(e), nil
	}
	c, ok := r.columns[key]
	if !ok {
		return nil, &core.LineageIncompleteError{Dataset: r.ds.Name, Column: name, Reason: "referenced column is not declared"}
	}
	if r.visiting[key] {
		return nil, &core.LineageIncompleteError{Dataset: r.ds.Name, Column: name, Reason: "circular expression reference"}
	}
	r.visiting[key] = true
	defer delete(r.visiting, key)

	e, err := r.compute(c)
	if err != nil {
		return nil, err
	}
	r.done[key] = e
	return expr.Clone(e), nil
}

func (r *branchResolver) compute(c core.Column) (expr.Expr, error) {
	if e, ok := r.parsed[strings.ToLower(c.Name)]; ok {
		for _, ref := range expr.ColumnRefs(e) {
			if ref.Table == "" && r.available != nil && !r.available[strings.ToLower(ref.Column)] {
				return nil, &core.LineageIncompleteError{
					Dataset: r.ds.Name,
					Column:  c.Name,
					Reason:  fmt.Sprintf("upstream %s has no column %q", r.edge.UpstreamName(), ref.Column),
				}
			}
		}
		var resolveErr error
		out, err := expr.Resolve(e, func(name string) (expr.Expr, bool) {
			v, err := r.resolve(name)
			if err != nil {
				resolveErr = err
				return nil, false
			}
			return v, true
		})
		if resolveErr != nil {
			return nil, resolveErr
		}
		if err != nil {
			return nil, &core.LineageIncompleteError{Dataset: r.ds.Name, Column: c.Name, Reason: err.Error()}
		}
		return out, nil
	}

	switch {
	case strings.EqualFold(c.Name, r.ds.SourceIdentityColumn):
		tag := r.edge.SourceIdentity
		if tag == "" {
			tag = r.edge.UpstreamName()
		}
		return expr.Str(tag), nil
	case c.Role == core.RoleSurrogateKey:
		tree, err := hashing.SurrogateKey(r.ds.Name, r.ds.BusinessKeys, r.builder.pepper)
		if err != nil {
			return nil, err
		}
		return r.bind(tree)
	case c.Role == core.RoleForeignKey:
		return r.foreignKey(c)
	case strings.EqualFold(c.Name, core.RowHashColumn) && NeedsRowHash(r.ds):
		shadow := *r.ds
		shadow.Columns = EffectiveColumns(r.ds)
		return r.bind(hashing.RowHash(hashing.RowHashAttributes(&shadow)))
	}

	upstreamName := c.Name
	if mapped, ok := r.edge.ColumnMap[c.Name]; ok && mapped != "" {
		upstreamName = mapped
	}
	if r.available == nil || r.available[strings.ToLower(upstreamName)] {
		return expr.Col(upstreamName), nil
	}
	return TypedNull(c.Type), nil
}

func (r *branchResolver) foreignKey(c core.Column) (expr.Expr, error) {
	if c.ForeignKey == nil {
		return nil, &core.LineageIncompleteError{Dataset: r.ds.Name, Column: c.Name, Reason: "foreign key column has no parent reference"}
	}
	parent, ok := r.builder.catalog.Get(c.ForeignKey.Parent)
	if !ok {
		return nil, &core.LineageIncompleteError{
			Dataset: r.ds.Name,
			Column:  c.Name,
			Reason:  fmt.Sprintf("foreign key parent %q not found", c.ForeignKey.Parent),
		}
	}
	tree, err := hashing.ForeignKey(r.ds.Name, c.Name, parent, c.ForeignKey.ColumnMap, r.builder.pepper)
	if err != nil {
		return nil, err
	}
	return r.bind(tree)
}

// bind replaces target-column references in a generated tree with the
// branch expressions of those columns.
func (r *branchResolver) bind(tree expr.Expr) (expr.Expr, error) {
	var bindErr error
	out, err := expr.MapColumns(tree, func(ref *expr.ColumnRef) expr.Expr {
		if bindErr != nil {
			return nil
		}
		v, err := r.resolve(ref.Column)
		if err != nil {
			bindErr = err
			return nil
		}
		return v
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return out, err
}

// TypedNull returns CAST(NULL AS typ), or a bare NULL when typ is empty.
func TypedNull(typ string) expr.Expr {
	if typ == "" {
		return expr.Null()
	}
	return &expr.Cast{Expr: expr.Null(), Type: typ}
}
