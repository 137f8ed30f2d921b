package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/cli/commands"
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/cli/testutil"
	"github.com/leapstack-labs/leapmeta/internal/config"
	_ "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command in a project directory and returns stdout
// and stderr.
func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--project-dir", dir))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func countRows(t *testing.T, dir, query string) int {
	t.Helper()
	db, err := sql.Open("duckdb", testutil.WarehousePath(dir))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	var n int
	require.NoError(t, db.QueryRow(query).Scan(&n))
	return n
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapmeta v"+Version)
}

func TestDialects(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "dialects", "--output", "json")
	require.NoError(t, err)

	byName := map[string]output.DialectOutput{}
	for _, d := range decode[[]output.DialectOutput](t, out) {
		byName[d.Name] = d
	}
	require.Contains(t, byName, "duckdb")
	assert.True(t, byName["duckdb"].Executor)
	assert.Equal(t, "main", byName["duckdb"].DefaultSchema)
	assert.False(t, byName["duckdb"].SupportsMerge)
	require.Contains(t, byName, "snowflake")
	assert.False(t, byName["snowflake"].Executor)
	assert.True(t, byName["snowflake"].SupportsMerge)
}

func TestRender(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "render", "customer_v", "--upstream", "--output", "json")
	require.NoError(t, err)

	rendered := decode[[]output.RenderOutput](t, out)
	require.Len(t, rendered, 2)
	assert.Equal(t, "customer", rendered[0].Dataset)
	assert.Equal(t, "rawcore.customer", rendered[0].Table)
	assert.NotEmpty(t, rendered[0].Statements)
	assert.Equal(t, "customer_v", rendered[1].Dataset)

	out, _, err = execute(t, dir, "render", "customer")
	require.NoError(t, err)
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "## customer (rawcore.customer)")
	assert.Contains(t, out, "```sql")

	_, _, err = execute(t, dir, "render", "ghost")
	assert.Error(t, err)
}

func TestDAG(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "dag", "--output", "json")
	require.NoError(t, err)

	dag := decode[output.DAGOutput](t, out)
	assert.Equal(t, 2, dag.TotalDatasets)
	assert.Equal(t, 1, dag.TotalEdges)
	require.Len(t, dag.Levels, 2)
	require.Len(t, dag.Levels[0].Datasets, 1)
	assert.Equal(t, "customer", dag.Levels[0].Datasets[0].Dataset)
	assert.Equal(t, []string{"customer_v"}, dag.Levels[0].Datasets[0].UsedBy)
	assert.Equal(t, "bizcore.customer_v", dag.Levels[1].Datasets[0].Table)

	out, _, err = execute(t, dir, "dag")
	require.NoError(t, err)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "- **Total Datasets**: 2")
}

func TestPreviewRunAndRuns(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := execute(t, dir, "run", "--write-execution-snapshot", "--output", "json")
	require.NoError(t, err)

	run := decode[output.RunOutput](t, out)
	assert.Equal(t, "success", run.Status)
	assert.False(t, run.Execute)
	assert.Equal(t, "duckdb", run.Dialect)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, 1, run.Steps[0].Attempts)

	out, _, err = execute(t, dir, "runs", "--output", "json")
	require.NoError(t, err)
	runs := decode[[]output.RunSummary](t, out)
	require.Len(t, runs, 1)
	assert.Equal(t, run.BatchRunID, runs[0].BatchRunID)

	out, _, err = execute(t, dir, "runs", run.BatchRunID, "--output", "json")
	require.NoError(t, err)
	detail := decode[output.RunDetailOutput](t, out)
	assert.Equal(t, "success", detail.Run.Status)
	assert.Len(t, detail.Events, 2)

	_, _, err = execute(t, dir, "runs", "no-such-run")
	assert.Error(t, err)
}

func TestRunWritesMetricsFile(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	path := filepath.Join(dir, "metrics", "leapmeta.prom")

	_, _, err := execute(t, dir, "run", "--metrics-file", path, "--output", "json")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `leapmeta_step_attempts_total{dataset="customer",status="success"} 1`)
	assert.Contains(t, text, `leapmeta_step_attempts_total{dataset="customer_v",status="success"} 1`)
	assert.Contains(t, text, "leapmeta_steps_total{")
	assert.Contains(t, text, `status="success"} 2`)
	assert.Contains(t, text, `leapmeta_step_duration_seconds_count{dataset="customer"} 1`)
}

func TestRunWarnsWithoutPepper(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	t.Setenv(config.DefaultPepperEnv, "")
	require.NoError(t, os.Unsetenv(config.DefaultPepperEnv))
	_, stderr, err := execute(t, dir, "render", "customer")
	require.NoError(t, err)
	assert.Contains(t, stderr, "pepper variable not set")
	assert.Contains(t, stderr, config.DefaultPepperEnv)

	t.Setenv(config.DefaultPepperEnv, "pep")
	_, stderr, err = execute(t, dir, "render", "customer")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "pepper variable not set")
}

func TestRunWithUnusableStatePath(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	out, stderr, err := execute(t, dir, "run", "--state", filepath.Join(blocker, "state.db"), "--write-execution-snapshot", "--output", "json")
	require.NoError(t, err)
	assert.Equal(t, "success", decode[output.RunOutput](t, out).Status)
	assert.Contains(t, stderr, "state store unavailable")
}

func TestRuns_NoStateDatabase(t *testing.T) {
	_, _, err := execute(t, t.TempDir(), "runs")
	assert.ErrorContains(t, err, "state database not found")
}

// TestExecuteAndDrift runs against a DuckDB file, then narrows a column
// and checks that drift blocks both the drift report and the next run.
func TestExecuteAndDrift(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	testutil.SeedWarehouse(t, dir, "INSERT INTO stage.crm_customer VALUES ('a', 'Alice', 1), ('b', 'Bob', 2)")

	out, _, err := execute(t, dir, "run", "--execute", "--output", "json")
	require.NoError(t, err)
	assert.Equal(t, "success", decode[output.RunOutput](t, out).Status)
	assert.Equal(t, 2, countRows(t, dir, "SELECT COUNT(*) FROM rawcore.customer"))
	assert.Equal(t, 2, countRows(t, dir, "SELECT COUNT(*) FROM bizcore.customer_v"))

	out, _, err = execute(t, dir, "drift", "--output", "json")
	require.NoError(t, err)
	report := decode[output.DriftOutput](t, out)
	assert.False(t, report.Blocked)
	assert.Len(t, report.Datasets, 2)

	testutil.SeedWarehouse(t, dir, "ALTER TABLE rawcore.customer ALTER COLUMN qty TYPE BIGINT")

	out, _, err = execute(t, dir, "drift", "--output", "json")
	require.Error(t, err)
	report = decode[output.DriftOutput](t, out)
	assert.True(t, report.Blocked)
	require.Len(t, report.Datasets, 2)
	assert.Equal(t, "blocked", report.Datasets[0].Status)
	assert.Contains(t, report.Datasets[0].Error, "qty")

	_, _, err = execute(t, dir, "run", "--execute")
	var runErr *commands.RunFailedError
	require.True(t, errors.As(err, &runErr), "got %v", err)
	assert.Equal(t, "blocked", runErr.Status)
}

func TestInvalidOutputFormat(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	_, _, err := execute(t, dir, "dag", "--output", "yaml")
	assert.Error(t, err)
}
