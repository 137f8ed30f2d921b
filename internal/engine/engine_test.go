package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	duckdbadapter "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customer() *core.Dataset {
	return &core.Dataset{
		Name:                "customer",
		Schema:              "rawcore",
		Layer:               core.LayerRawcore,
		IncrementalStrategy: core.StrategyMerge,
		Materialization:     core.MaterializationTable,
		HandleDeletes:       true,
		Historize:           true,
		BusinessKeys:        []string{"customer_no"},
		Columns: []core.Column{
			{Name: "customer_sk", Type: "VARCHAR(64)", Role: core.RoleSurrogateKey},
			{Name: "customer_no", Type: "VARCHAR(20)"},
			{Name: "name", Type: "VARCHAR(100)"},
			{Name: "qty", Type: "SMALLINT"},
		},
		Upstreams: []core.Edge{{
			Source: &core.TableRef{Schema: "stage", Name: "customer"},
			Role:   core.EdgeSingle,
		}},
	}
}

func customerView() *core.Dataset {
	return &core.Dataset{
		Name:                "customer_v",
		Schema:              "bizcore",
		Layer:               core.LayerBizcore,
		IncrementalStrategy: core.StrategyFull,
		Materialization:     core.MaterializationView,
		Columns: []core.Column{
			{Name: "customer_no", Type: "VARCHAR(20)"},
			{Name: "name", Type: "VARCHAR(100)"},
		},
		Upstreams: []core.Edge{{Dataset: "customer", Role: core.EdgeSingle}},
	}
}

func newTestEngine(t *testing.T, datasets ...*core.Dataset) *Engine {
	t.Helper()
	catalog, err := core.NewCatalog(datasets...)
	require.NoError(t, err)

	e, err := NewWithCatalog(catalog, Config{
		StatePath: ":memory:",
		Dialect:   "duckdb",
		Target:    core.TargetConfig{Type: "duckdb"},
		Pepper:    "pep",
		Executor:  duckdbadapter.New(nil),
		Logger:    testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewWithCatalog_Errors(t *testing.T) {
	catalog, err := core.NewCatalog(customer())
	require.NoError(t, err)

	_, err = NewWithCatalog(catalog, Config{Dialect: "oracle"})
	var ue *dialect.UnknownDialectError
	assert.ErrorAs(t, err, &ue)

	_, err = NewWithCatalog(catalog, Config{})
	assert.ErrorIs(t, err, dialect.ErrDialectRequired)
}

func TestNewWithCatalog_StateStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	catalog, err := core.NewCatalog(customer(), customerView())
	require.NoError(t, err)

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var logs bytes.Buffer
	e, err := NewWithCatalog(catalog, Config{
		StatePath: filepath.Join(blocker, "state.db"),
		Dialect:   "duckdb",
		Target:    core.TargetConfig{Type: "duckdb"},
		Executor:  duckdbadapter.New(nil),
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Nil(t, e.Store())
	assert.Contains(t, logs.String(), "state store unavailable")

	require.NoError(t, e.ensureConnected(ctx))
	for _, sql := range []string{
		"CREATE SCHEMA stage",
		"CREATE TABLE stage.customer (customer_no VARCHAR, name VARCHAR, qty SMALLINT)",
		"INSERT INTO stage.customer VALUES ('a', 'Alice', 1)",
	} {
		_, err := e.exec.Exec(ctx, sql)
		require.NoError(t, err, sql)
	}

	res, err := e.Run(ctx, RunOptions{Policy: core.ExecutionPolicy{Execute: true}, WriteSnapshot: true})
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSuccess, res.Status)
}

func TestNew_LoadsMetadata(t *testing.T) {
	dir := t.TempDir()
	yaml := `datasets:
  - name: customer
    layer: rawcore
    incremental_strategy: merge
    business_keys: [customer_no]
    columns:
      - name: customer_sk
        type: VARCHAR(64)
        role: surrogate_key
      - name: customer_no
        type: VARCHAR(20)
    upstreams:
      - source: {schema: stage, name: customer}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customer.yaml"), []byte(yaml), 0o644))

	e, err := New(Config{MetadataDir: dir, Dialect: "duckdb"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 1, e.Catalog().Len())
	assert.Equal(t, "duckdb", e.Dialect().Name())
	assert.Nil(t, e.Store())
}

func TestEngine_Render(t *testing.T) {
	e := newTestEngine(t, customer(), customerView())

	plans, err := e.Render(Selection{Datasets: []string{"customer_v"}, Upstream: true})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "customer", plans[0].Dataset.Name)
	assert.Equal(t, "customer_v", plans[1].Dataset.Name)
	assert.NotEmpty(t, plans[0].Statements)

	_, err = e.Render(Selection{Datasets: []string{"ghost"}})
	assert.Error(t, err)
}

func TestEngine_PreviewRun(t *testing.T) {
	e := newTestEngine(t, customer(), customerView())
	ctx := context.Background()

	res, err := e.Run(ctx, RunOptions{WriteSnapshot: true})
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusSuccess, res.Status)

	events, err := e.Store().Events(ctx, res.BatchRunID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	snap, err := e.Store().Snapshot(ctx, res.BatchRunID)
	require.NoError(t, err)
	assert.False(t, snap.Policy.Execute)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, []string{"customer"}, snap.Steps[1].DependsOn)
}

// TestEngine_Run executes against an in-memory DuckDB, then blocks a run on
// a narrowing type change.
func TestEngine_Run(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, customer(), customerView())
	require.NoError(t, e.ensureConnected(ctx))
	db := e.exec.(adapter.Adapter)

	mustExec := func(sql string) {
		t.Helper()
		_, err := e.exec.Exec(ctx, sql)
		require.NoError(t, err, sql)
	}
	count := func(sql string) int {
		t.Helper()
		rows, err := db.Query(ctx, sql)
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()
		require.True(t, rows.Next())
		var n int
		require.NoError(t, rows.Scan(&n))
		return n
	}

	mustExec("CREATE SCHEMA stage")
	mustExec("CREATE TABLE stage.customer (customer_no VARCHAR, name VARCHAR, qty SMALLINT)")
	mustExec("INSERT INTO stage.customer VALUES ('a', 'Alice', 1), ('b', 'Bob', 2)")

	policy := core.ExecutionPolicy{Execute: true, MaxRetries: 1, Parallelism: 2}
	res, err := e.Run(ctx, RunOptions{Policy: policy, WriteSnapshot: true})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, core.RunStatusSuccess, res.Status)
	assert.Equal(t, 2, count("SELECT COUNT(*) FROM bizcore.customer_v"))
	assert.Equal(t, 2, count("SELECT COUNT(*) FROM rawcore.customer_hist WHERE version_ended_at IS NULL"))
	assert.Equal(t, 2, count("SELECT COUNT(*) FROM rawcore.customer_hist WHERE load_run_id = '"+res.BatchRunID+"'"))

	mustExec("ALTER TABLE rawcore.customer ALTER COLUMN qty TYPE BIGINT")
	mustExec("INSERT INTO stage.customer VALUES ('c', 'Carol', 3)")

	res, err = e.Run(ctx, RunOptions{Policy: policy, WriteSnapshot: true})
	var de *core.TypeDriftBlockingError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "qty", de.Column)
	assert.Equal(t, core.RunStatusBlocked, res.Status)
	assert.True(t, res.Failed())

	v, _ := res.Step("customer_v")
	assert.Equal(t, core.SkipAborted, v.SkipKind)
	assert.Equal(t, 2, count("SELECT COUNT(*) FROM rawcore.customer"))

	snap, err := e.Store().Snapshot(ctx, res.BatchRunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusBlocked, snap.Status)

	report, err := e.Drift(ctx, Selection{})
	require.NoError(t, err)
	require.Len(t, report.Plans, 2)
	assert.ErrorAs(t, report.Failures["customer"], &de)
	assert.NotContains(t, report.Failures, "customer_v")
	assert.Error(t, report.Blocking)
	assert.ErrorContains(t, report.Err(), "customer: ")
}
