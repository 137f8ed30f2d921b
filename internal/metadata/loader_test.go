package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerYAML = `
datasets:
  - name: customer
    layer: rawcore
    lineage_key: ds-customer
    incremental_strategy: merge
    handle_deletes: true
    historize: true
    business_keys: [customer_no]
    former_names: [client]
    columns:
      - name: customer_sk
        type: VARCHAR(64)
        role: surrogate_key
      - name: customer_no
        type: VARCHAR(20)
        nullable: false
      - name: full_name
        type: VARCHAR(100)
        expression: "CONCAT({expr:first_name}, ' ', {expr:last_name})"
        former_names: [name]
    upstreams:
      - source:
          schema: stage
          name: crm_customer
          columns:
            - {name: customer_no, type: VARCHAR(20)}
            - {name: first_name, type: VARCHAR(50)}
            - {name: last_name, type: VARCHAR(50)}
`

const ordersYAML = `
datasets:
  - name: orders
    layer: bizcore
    materialization: view
    columns:
      - name: customer_fk
        type: VARCHAR(64)
        role: foreign_key
        foreign_key:
          parent: customer
          columns: {customer_no: customer_no}
      - name: customer_no
        type: VARCHAR(20)
    upstreams:
      - dataset: customer
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rawcore/customer.yaml", customerYAML)
	writeFile(t, dir, "bizcore/orders.yml", ordersYAML)
	writeFile(t, dir, "README.md", "not metadata")

	catalog, err := NewLoader(dir, testutil.NewTestLogger(t)).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"customer", "orders"}, catalog.Names())

	customer, ok := catalog.Get("customer")
	require.True(t, ok)
	assert.Equal(t, "rawcore", customer.Schema)
	assert.Equal(t, core.LayerRawcore, customer.Layer)
	assert.Equal(t, core.StrategyMerge, customer.IncrementalStrategy)
	assert.Equal(t, core.MaterializationTable, customer.Materialization)
	assert.True(t, customer.HandleDeletes)
	assert.True(t, customer.Historize)
	assert.Equal(t, []string{"client"}, customer.FormerNames)
	require.Len(t, customer.Columns, 3)
	assert.Equal(t, core.RoleSurrogateKey, customer.Columns[0].Role)
	assert.False(t, customer.Columns[1].Nullable)
	assert.True(t, customer.Columns[2].Nullable)
	assert.Equal(t, []string{"name"}, customer.Columns[2].FormerNames)
	require.Len(t, customer.Upstreams, 1)
	assert.Equal(t, core.EdgeSingle, customer.Upstreams[0].Role)
	assert.Equal(t, "stage.crm_customer", customer.Upstreams[0].Source.String())
	assert.Len(t, customer.Upstreams[0].SourceColumns, 3)

	byKey, ok := catalog.ByLineageKey("ds-customer")
	require.True(t, ok)
	assert.Same(t, customer, byKey)

	orders, ok := catalog.Get("orders")
	require.True(t, ok)
	assert.Equal(t, core.StrategyFull, orders.IncrementalStrategy)
	assert.Equal(t, core.MaterializationView, orders.Materialization)
	assert.Equal(t, "customer", orders.Columns[0].ForeignKey.Parent)
	assert.Equal(t, []string{"customer"}, orders.Dependencies())
}

func TestLoader_EmptyDirectory(t *testing.T) {
	_, err := NewLoader(t.TempDir(), nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata files")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "unknown field",
			yaml:   "datasets:\n  - name: a\n    layer: stage\n    colour: red\n",
			errMsg: "colour",
		},
		{
			name:   "invalid yaml",
			yaml:   "datasets: [",
			errMsg: "a.yaml",
		},
		{
			name:   "missing name",
			yaml:   "datasets:\n  - layer: stage\n",
			errMsg: "dataset without name",
		},
		{
			name:   "invalid strategy",
			yaml:   "datasets:\n  - name: a\n    layer: stage\n    incremental_strategy: append\n",
			errMsg: "invalid incremental_strategy",
		},
		{
			name:   "invalid materialization",
			yaml:   "datasets:\n  - name: a\n    layer: stage\n    materialization: ephemeral\n",
			errMsg: "invalid materialization",
		},
		{
			name:   "invalid layer",
			yaml:   "datasets:\n  - name: a\n    layer: gold\n",
			errMsg: "invalid layer",
		},
		{
			name:   "invalid role",
			yaml:   "datasets:\n  - name: a\n    layer: stage\n    columns:\n      - {name: x, type: INT, role: primary}\n",
			errMsg: "invalid role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("a.yaml", []byte(tt.yaml))
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	ds, err := Parse("empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestParse_UnionRoleDefault(t *testing.T) {
	ds, err := Parse("a.yaml", []byte(`
datasets:
  - name: a
    layer: rawcore
    upstreams:
      - dataset: b
      - dataset: c
        role: single
`))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, core.EdgeUnion, ds[0].Upstreams[0].Role)
	assert.Equal(t, core.EdgeSingle, ds[0].Upstreams[1].Role)
}

func TestValidate(t *testing.T) {
	base := func() []*core.Dataset {
		return []*core.Dataset{
			{
				Name:         "customer",
				LineageKey:   "k1",
				BusinessKeys: []string{"customer_no"},
				Columns:      []core.Column{{Name: "customer_no", Type: "VARCHAR(20)"}},
				Upstreams:    []core.Edge{{Source: &core.TableRef{Name: "src"}, Role: core.EdgeSingle}},
			},
			{
				Name: "orders",
				Columns: []core.Column{
					{Name: "customer_fk", Type: "VARCHAR(64)", Role: core.RoleForeignKey,
						ForeignKey: &core.ForeignKeyRef{Parent: "customer", ColumnMap: map[string]string{"customer_no": "customer_no"}}},
				},
				Upstreams: []core.Edge{{Dataset: "customer", Role: core.EdgeSingle}},
			},
		}
	}

	require.NoError(t, Validate(base()))

	tests := []struct {
		name   string
		mutate func(ds []*core.Dataset) []*core.Dataset
		errMsg string
	}{
		{"duplicate dataset", func(ds []*core.Dataset) []*core.Dataset {
			return append(ds, &core.Dataset{Name: "customer"})
		}, "duplicate dataset name"},
		{"duplicate lineage key", func(ds []*core.Dataset) []*core.Dataset {
			ds[1].LineageKey = "k1"
			return ds
		}, `lineage key "k1" already used by customer`},
		{"unknown business key", func(ds []*core.Dataset) []*core.Dataset {
			ds[0].BusinessKeys = []string{"id"}
			return ds
		}, "business key is not a declared column"},
		{"unknown upstream", func(ds []*core.Dataset) []*core.Dataset {
			ds[1].Upstreams[0].Dataset = "client"
			return ds
		}, `upstream dataset "client" not found`},
		{"upstream without target", func(ds []*core.Dataset) []*core.Dataset {
			ds[1].Upstreams[0].Dataset = ""
			return ds
		}, "sets neither dataset nor source"},
		{"fk parent missing", func(ds []*core.Dataset) []*core.Dataset {
			ds[1].Columns[0].ForeignKey.Parent = "client"
			return ds
		}, `foreign key parent "client" not found`},
		{"fk parent without business keys", func(ds []*core.Dataset) []*core.Dataset {
			ds[0].BusinessKeys = nil
			return ds
		}, "declares no business keys"},
		{"former name collides", func(ds []*core.Dataset) []*core.Dataset {
			ds[1].FormerNames = []string{"customer"}
			return ds
		}, `former name "customer" collides`},
		{"duplicate column", func(ds []*core.Dataset) []*core.Dataset {
			ds[0].Columns = append(ds[0].Columns, core.Column{Name: "CUSTOMER_NO", Type: "INT"})
			return ds
		}, "duplicate column"},
		{"missing type", func(ds []*core.Dataset) []*core.Dataset {
			ds[0].Columns[0].Type = ""
			return ds
		}, "missing type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(base()))
			require.Error(t, err)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
