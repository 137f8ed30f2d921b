package plan

import (
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/hashing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, datasets ...*core.Dataset) *core.Catalog {
	t.Helper()
	c, err := core.NewCatalog(datasets...)
	require.NoError(t, err)
	return c
}

func stageCustomer() *core.Dataset {
	return &core.Dataset{
		Name:   "stg_customer",
		Schema: "stage",
		Layer:  core.LayerStage,
		Columns: []core.Column{
			{Name: "customer_no", Type: "VARCHAR(20)"},
			{Name: "name", Type: "VARCHAR(100)"},
			{Name: "city", Type: "VARCHAR(50)"},
		},
		Upstreams: []core.Edge{{Source: &core.TableRef{Schema: "raw", Name: "crm_customer"}, Role: core.EdgeSingle}},
	}
}

func TestBuild_SingleUpstream(t *testing.T) {
	stg := stageCustomer()
	rc := &core.Dataset{
		Name:                "customer",
		Schema:              "rawcore",
		Layer:               core.LayerRawcore,
		IncrementalStrategy: core.StrategyMerge,
		Materialization:     core.MaterializationTable,
		BusinessKeys:        []string{"customer_no"},
		Columns: []core.Column{
			{Name: "name", Type: "VARCHAR(100)"},
			{Name: "customer_no", Type: "VARCHAR(20)"},
			{Name: "customer_sk", Type: "VARCHAR(64)", Role: core.RoleSurrogateKey},
			{Name: "name_upper", Type: "VARCHAR(100)", Expression: "COALESCE({expr:name}, 'n/a')"},
		},
		Upstreams: []core.Edge{{Dataset: "stg_customer", Role: core.EdgeSingle}},
	}

	q, err := NewBuilder(newCatalog(t, stg, rc), "pep").Build(rc)
	require.NoError(t, err)

	sel, ok := q.Root.(*Select)
	require.True(t, ok)
	assert.Equal(t, []string{"customer_sk", "customer_no", "name", "name_upper", "row_hash"}, OutputNames(sel))

	from, ok := sel.From.(*TableSource)
	require.True(t, ok)
	assert.Equal(t, core.TableRef{Schema: "stage", Name: "stg_customer"}, from.Table)

	sk, err := hashing.SurrogateKey("customer", []string{"customer_no"}, "pep")
	require.NoError(t, err)
	assert.True(t, expr.Equal(sk, sel.Items[0].Expr))

	// {expr:name} resolved to the branch expression of name
	want := &expr.Coalesce{Args: []expr.Expr{expr.Col("name"), expr.Str("n/a")}}
	assert.True(t, expr.Equal(want, sel.Items[3].Expr))

	// row hash over non-key attributes
	assert.True(t, expr.Equal(hashing.RowHash([]string{"name", "name_upper"}), mustBindRowHash(t, sel.Items[4].Expr)))
}

// mustBindRowHash maps the resolved name_upper expression back to a column ref.
func mustBindRowHash(t *testing.T, e expr.Expr) expr.Expr {
	t.Helper()
	out, err := expr.Rewrite(e, func(n expr.Expr) (expr.Expr, error) {
		if c, ok := n.(*expr.Coalesce); ok && len(c.Args) == 2 {
			if lit, ok := c.Args[1].(*expr.Literal); ok && lit.Value == "n/a" {
				return expr.Col("name_upper"), nil
			}
		}
		return n, nil
	})
	require.NoError(t, err)
	return out
}

func TestBuild_ForeignKeyMirrorsParent(t *testing.T) {
	customer := &core.Dataset{
		Name:         "customer",
		Layer:        core.LayerRawcore,
		BusinessKeys: []string{"customer_no"},
		Columns:      []core.Column{{Name: "customer_no"}},
		Upstreams:    []core.Edge{{Source: &core.TableRef{Name: "src_customer"}}},
	}
	orders := &core.Dataset{
		Name:         "orders",
		Layer:        core.LayerRawcore,
		BusinessKeys: []string{"order_no"},
		Columns: []core.Column{
			{Name: "order_no"},
			{Name: "cust_no"},
			{Name: "customer_fk", Role: core.RoleForeignKey, ForeignKey: &core.ForeignKeyRef{
				Parent:    "customer",
				ColumnMap: map[string]string{"customer_no": "cust_no"},
			}},
		},
		Upstreams: []core.Edge{{
			Source:    &core.TableRef{Name: "src_orders"},
			ColumnMap: map[string]string{"cust_no": "customer"},
		}},
	}

	q, err := NewBuilder(newCatalog(t, customer, orders), "p").Build(orders)
	require.NoError(t, err)

	sel := q.Root.(*Select)
	assert.Equal(t, []string{"customer_fk", "order_no", "cust_no"}, OutputNames(sel))

	// the upstream column behind cust_no is "customer"
	want, err := hashing.ForeignKey("orders", "customer_fk", customer, map[string]string{"customer_no": "customer"}, "p")
	require.NoError(t, err)
	assert.True(t, expr.Equal(want, sel.Items[0].Expr))
}

func TestBuild_UnionFillsMissingColumnsWithTypedNull(t *testing.T) {
	ds := &core.Dataset{
		Name:                 "customer_all",
		Layer:                core.LayerStage,
		BusinessKeys:         []string{"customer_no"},
		SourceIdentityColumn: "source_system",
		Columns: []core.Column{
			{Name: "customer_no", Type: "VARCHAR(20)"},
			{Name: "city", Type: "VARCHAR(50)"},
			{Name: "source_system", Type: "VARCHAR(10)", Role: core.RoleTechnical},
		},
		Upstreams: []core.Edge{
			{
				Source:         &core.TableRef{Name: "erp_customer"},
				SourceColumns:  []core.SourceColumn{{Name: "customer_no"}},
				Role:           core.EdgeUnion,
				SourceIdentity: "erp",
			},
			{
				Source:         &core.TableRef{Name: "crm_customer"},
				SourceColumns:  []core.SourceColumn{{Name: "customer_no"}, {Name: "town"}},
				Role:           core.EdgeUnion,
				SourceIdentity: "crm",
				ColumnMap:      map[string]string{"city": "town"},
			},
		},
	}

	q, err := NewBuilder(newCatalog(t, ds), "p").Build(ds)
	require.NoError(t, err)

	union, ok := q.Root.(*Union)
	require.True(t, ok, "identity mode is a flat union")
	require.Len(t, union.Selects, 2)
	assert.True(t, union.All)

	first := union.Selects[0]
	assert.Equal(t, []string{"customer_no", "city", "source_system"}, OutputNames(first))
	assert.True(t, expr.Equal(&expr.Cast{Expr: expr.Null(), Type: "VARCHAR(50)"}, first.Items[1].Expr))
	assert.Equal(t, "city", first.Items[1].Alias)
	assert.True(t, expr.Equal(expr.Str("erp"), first.Items[2].Expr))

	second := union.Selects[1]
	assert.True(t, expr.Equal(expr.Col("town"), second.Items[1].Expr))
	assert.True(t, expr.Equal(expr.Str("crm"), second.Items[2].Expr))
}

func TestBuild_UnionWithoutIdentityRanks(t *testing.T) {
	ds := &core.Dataset{
		Name:          "customer_all",
		Layer:         core.LayerStage,
		BusinessKeys:  []string{"customer_no"},
		RecencyColumn: "updated_at",
		Columns: []core.Column{
			{Name: "customer_no"},
			{Name: "updated_at", Type: "TIMESTAMP"},
		},
		Upstreams: []core.Edge{
			{Source: &core.TableRef{Name: "a"}, Role: core.EdgeUnion},
			{Source: &core.TableRef{Name: "b"}, Role: core.EdgeUnion},
		},
	}

	q, err := NewBuilder(newCatalog(t, ds), "p").Build(ds)
	require.NoError(t, err)

	outer, ok := q.Root.(*Select)
	require.True(t, ok)
	assert.Equal(t, []string{"customer_no", "updated_at"}, OutputNames(outer))
	assert.True(t, expr.Equal(expr.Eq(expr.QCol(RankedAlias, RankColumn), expr.Num("1")), outer.Where))

	rankedSrc := outer.From.(*SubquerySource)
	assert.Equal(t, RankedAlias, rankedSrc.Alias)
	ranked := rankedSrc.Query.(*Select)
	last := ranked.Items[len(ranked.Items)-1]
	assert.Equal(t, RankColumn, last.Alias)

	win := last.Expr.(*expr.WindowFunction)
	assert.Equal(t, "ROW_NUMBER", win.Name)
	assert.True(t, expr.Equal(expr.QCol(UnionAlias, "customer_no"), win.PartitionBy[0]))
	assert.True(t, win.OrderBy[0].Desc)

	unionSrc := ranked.From.(*SubquerySource)
	assert.Equal(t, UnionAlias, unionSrc.Alias)
	assert.IsType(t, &Union{}, unionSrc.Query)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ds     *core.Dataset
		reason string
	}{
		{
			name:   "no upstream",
			ds:     &core.Dataset{Name: "x"},
			reason: "no upstream lineage",
		},
		{
			name: "missing upstream dataset",
			ds: &core.Dataset{
				Name:      "x",
				Columns:   []core.Column{{Name: "a"}},
				Upstreams: []core.Edge{{Dataset: "ghost"}},
			},
			reason: `upstream dataset "ghost" not found`,
		},
		{
			name: "surrogate key without business key",
			ds: &core.Dataset{
				Name:      "x",
				Columns:   []core.Column{{Name: "sk", Role: core.RoleSurrogateKey}},
				Upstreams: []core.Edge{{Source: &core.TableRef{Name: "s"}}},
			},
			reason: "no business key declared",
		},
		{
			name: "union without recency",
			ds: &core.Dataset{
				Name:         "x",
				BusinessKeys: []string{"a"},
				Columns:      []core.Column{{Name: "a"}},
				Upstreams: []core.Edge{
					{Source: &core.TableRef{Name: "s1"}, Role: core.EdgeUnion},
					{Source: &core.TableRef{Name: "s2"}, Role: core.EdgeUnion},
				},
			},
			reason: "recency column",
		},
		{
			name: "circular reference",
			ds: &core.Dataset{
				Name: "x",
				Columns: []core.Column{
					{Name: "a", Expression: "{expr:b}"},
					{Name: "b", Expression: "{expr:a}"},
				},
				Upstreams: []core.Edge{{Source: &core.TableRef{Name: "s"}}},
			},
			reason: "circular expression reference",
		},
		{
			name: "unknown upstream column",
			ds: &core.Dataset{
				Name:    "x",
				Columns: []core.Column{{Name: "a", Expression: "COL('zzz')"}},
				Upstreams: []core.Edge{{
					Source:        &core.TableRef{Name: "s"},
					SourceColumns: []core.SourceColumn{{Name: "a"}},
				}},
			},
			reason: `no column "zzz"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(newCatalog(t, tt.ds), "p").Build(tt.ds)
			var le *core.LineageIncompleteError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, le.Reason, tt.reason)
			assert.Equal(t, "x", le.Dataset)
		})
	}
}

func TestBuild_ParseErrorCarriesColumn(t *testing.T) {
	ds := &core.Dataset{
		Name:      "x",
		Columns:   []core.Column{{Name: "a", Expression: "HASH256("}},
		Upstreams: []core.Edge{{Source: &core.TableRef{Name: "s"}}},
	}
	_, err := NewBuilder(newCatalog(t, ds), "p").Build(ds)

	var pe *core.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "x", pe.Dataset)
	assert.Equal(t, "a", pe.Column)
}

func TestOrderedColumns(t *testing.T) {
	d := &core.Dataset{
		Layer:               core.LayerRawcore,
		IncrementalStrategy: core.StrategyMerge,
		BusinessKeys:        []string{"b2", "b1"},
		Columns: []core.Column{
			{Name: "loaded_at", Role: core.RoleTechnical},
			{Name: "calc", Expression: "'x'"},
			{Name: "attr"},
			{Name: "b1"},
			{Name: "fk", Role: core.RoleForeignKey},
			{Name: "b2"},
			{Name: "sk", Role: core.RoleSurrogateKey},
		},
	}
	assert.Equal(t,
		[]string{"sk", "fk", "b2", "b1", "attr", "calc", "loaded_at", "row_hash"},
		ColumnNames(OrderedColumns(d)))

	d.Materialization = core.MaterializationView
	assert.NotContains(t, ColumnNames(OrderedColumns(d)), "row_hash")
}
