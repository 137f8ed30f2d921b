package duckdb

import (
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/hashing"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectRegistration(t *testing.T) {
	d, ok := dialect.Get("duckdb")
	require.True(t, ok, "duckdb dialect should be registered")
	assert.Equal(t, "duckdb", d.Name())
	assert.Equal(t, "main", Config.DefaultSchema)
}

func TestHashExpression(t *testing.T) {
	got, err := DuckDB.RenderExpression(&expr.Hash256{Arg: &expr.ConcatWs{
		Separator: expr.Str("|"),
		Args:      []expr.Expr{expr.Str("a~"), expr.Col("a")},
	}})
	require.NoError(t, err)
	assert.Equal(t, "SHA256(CONCAT_WS('|', 'a~', a))", got)
}

func TestMergeFallsBackToUpdateAndInsert(t *testing.T) {
	table := core.TableRef{Schema: "rawcore", Name: "customer"}
	src := &plan.Select{
		Items: []plan.SelectItem{{Expr: expr.Col("id"), Alias: "id"}, {Expr: expr.Col("name"), Alias: "name"}},
		From:  &plan.TableSource{Table: core.TableRef{Schema: "stage", Name: "customer"}},
	}

	_, err := DuckDB.RenderStatement(&plan.Merge{Table: table, Source: src, Keys: []string{"id"}})
	assert.ErrorIs(t, err, core.ErrNotSupported)

	assert.True(t, DuckDB.Capabilities().SupportsUpdateFrom)
	got, err := DuckDB.RenderStatement(&plan.UpdateFrom{Table: table, Source: src, Keys: []string{"id"}, Columns: []string{"name"}})
	require.NoError(t, err)
	assert.Contains(t, got, "UPDATE rawcore.customer AS t SET\n    name = s.name")
}

func TestAlterColumnType(t *testing.T) {
	got, err := DuckDB.RenderStatement(&plan.AlterColumnType{
		Table:  core.TableRef{Schema: "main", Name: "orders"},
		Column: "amount",
		Type:   "DECIMAL(18,4)",
	})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE main.orders ALTER COLUMN amount TYPE DECIMAL(18,4)", got)
}

func TestTypeMap(t *testing.T) {
	assert.Equal(t, "VARCHAR", DuckDB.MapType("STRING"))
	assert.Equal(t, "VARCHAR", DuckDB.MapType("VARCHAR(50)"))
	assert.Equal(t, "BIGINT", DuckDB.MapType("BIGINT"))
}

func TestHashKeysCastToText(t *testing.T) {
	sk, err := hashing.SurrogateKey("d", []string{"id"}, "p")
	require.NoError(t, err)

	tests := []struct {
		name     string
		tree     expr.Expr
		expected string
	}{
		{"surrogate key", sk, "SHA256(CONCAT_WS('|', CONCAT('id', '~', COALESCE(CAST(id AS VARCHAR), 'null_replaced')), 'p'))"},
		{"row hash", hashing.RowHash([]string{"qty", "order_date"}), "SHA256(CONCAT_WS('|', CONCAT('order_date', '~', COALESCE(CAST(order_date AS VARCHAR), 'null_replaced')), CONCAT('qty', '~', COALESCE(CAST(qty AS VARCHAR), 'null_replaced'))))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DuckDB.RenderExpression(tt.tree)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
