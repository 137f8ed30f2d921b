package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	duckdbdialect "github.com/leapstack-labs/leapmeta/pkg/dialects/duckdb"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/hashing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		verify    func(t *testing.T, path string)
	}{
		{
			name: "in-memory",
			setupPath: func(_ *testing.T) string {
				return ""
			},
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "test.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(nil)

			dbPath := tt.setupPath(t)
			require.NoError(t, adp.Connect(ctx, core.TargetConfig{Database: dbPath}))
			defer func() { _ = adp.Close() }()
			assert.True(t, adp.IsConnected())

			if tt.verify != nil {
				tt.verify(t, dbPath)
			}
		})
	}
}

func TestAdapter_ConnectAppliesSettings(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.TargetConfig{
		Params: map[string]any{"settings": map[string]any{"threads": 2}},
	}))
	defer func() { _ = adp.Close() }()

	rows, err := adp.Query(ctx, "SELECT current_setting('threads')")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var threads int64
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&threads))
	assert.Equal(t, int64(2), threads)
}

func TestAdapter_ConnectRejectsInvalidParams(t *testing.T) {
	adp := New(nil)
	err := adp.Connect(context.Background(), core.TargetConfig{
		Params: map[string]any{"extensions": []any{"httpfs; DROP TABLE x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid extension name")
	assert.False(t, adp.IsConnected())
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	_, err := adp.Exec(ctx, "SELECT 1")
	assert.Error(t, err, "expected error when operating without connection")

	_, err = adp.Query(ctx, "SELECT 1")
	assert.Error(t, err, "expected error when operating without connection")
}

func TestAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
	}{
		{"close without connect", false},
		{"close after connect", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(nil)

			if tt.connect {
				require.NoError(t, adp.Connect(ctx, core.TargetConfig{}))
			}

			assert.NoError(t, adp.Close())
			assert.False(t, adp.IsConnected())
		})
	}
}

func TestAdapter_ExecReportsAffectedRows(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.TargetConfig{}))
	defer func() { _ = adp.Close() }()

	_, err := adp.Exec(ctx, "CREATE TABLE t (id INTEGER, name VARCHAR)")
	require.NoError(t, err)

	n, err := adp.Exec(ctx, "INSERT INTO t VALUES (1, 'alice'), (2, 'bob'), (3, 'charlie')")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = adp.Exec(ctx, "UPDATE t SET name = 'x' WHERE id > 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAdapter_DescribeTable(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.TargetConfig{}))
	defer func() { _ = adp.Close() }()

	_, err := adp.Exec(ctx, "CREATE SCHEMA rawcore")
	require.NoError(t, err)
	_, err = adp.Exec(ctx, "CREATE TABLE rawcore.orders (id INTEGER NOT NULL, amount DECIMAL(18,2), note VARCHAR)")
	require.NoError(t, err)

	meta, err := adp.DescribeTable(ctx, core.TableRef{Schema: "rawcore", Name: "orders"})
	require.NoError(t, err)
	require.Len(t, meta.Columns, 3)
	assert.Equal(t, "id", meta.Columns[0].Name)
	assert.Equal(t, "INTEGER", meta.Columns[0].Type)
	assert.False(t, meta.Columns[0].Nullable)
	assert.Equal(t, "DECIMAL(18,2)", meta.Columns[1].Type)
	assert.True(t, meta.Columns[2].Nullable)

	_, err = adp.DescribeTable(ctx, core.TableRef{Schema: "rawcore", Name: "missing"})
	assert.ErrorIs(t, err, core.ErrTableNotFound)
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("duckdb"))

	exec, err := adapter.Engine("duckdb")(core.TargetConfig{}, nil)
	require.NoError(t, err)
	_, ok := exec.(*Adapter)
	assert.True(t, ok, "factory should return *Adapter")
}

func TestAdapter_HashMatchesInMemoryDigest(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)
	require.NoError(t, adp.Connect(ctx, core.TargetConfig{}))
	defer func() { _ = adp.Close() }()

	_, err := adp.Exec(ctx, "CREATE TABLE t (id INTEGER, order_date DATE, note VARCHAR)")
	require.NoError(t, err)
	_, err = adp.Exec(ctx, "INSERT INTO t VALUES (42, DATE '2024-03-01', NULL)")
	require.NoError(t, err)

	row := expr.Row{"id": expr.Value("42"), "order_date": expr.Value("2024-03-01"), "note": nil}

	sk, err := hashing.SurrogateKey("t", []string{"id"}, "pep")
	require.NoError(t, err)

	tests := []struct {
		name string
		tree expr.Expr
	}{
		{"surrogate key over integer", sk},
		{"row hash over date and null", hashing.RowHash([]string{"order_date", "note"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := hashing.Compute(tt.tree, row)
			require.NoError(t, err)

			sqlExpr, err := duckdbdialect.DuckDB.RenderExpression(tt.tree)
			require.NoError(t, err)

			rows, err := adp.Query(ctx, "SELECT "+sqlExpr+" FROM t")
			require.NoError(t, err)
			defer func() { _ = rows.Close() }()

			var got string
			require.True(t, rows.Next())
			require.NoError(t, rows.Scan(&got))
			assert.Equal(t, want, got)
		})
	}
}
