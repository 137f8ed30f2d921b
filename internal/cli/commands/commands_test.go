package commands

import (
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/cli/testutil"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/drift"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandMetadata(t *testing.T) {
	cmds := []*cobra.Command{
		NewRenderCommand(),
		NewRunCommand(),
		NewDriftCommand(),
		NewDAGCommand(),
		NewDialectsCommand(),
		NewRunsCommand(),
		NewVersionCommand("test"),
	}
	for _, cmd := range cmds {
		t.Run(cmd.Name(), func(t *testing.T) {
			assert.NotEmpty(t, cmd.Use)
			assert.NotEmpty(t, cmd.Short)
			assert.NotEmpty(t, cmd.Long)
		})
	}
}

func TestRunCommand_Flags(t *testing.T) {
	cmd := NewRunCommand()
	for _, name := range []string{
		"select", "upstream", "downstream", "execute", "continue-on-error", "max-retries",
		"retry-backoff", "parallelism", "debug-execution", "write-execution-snapshot", "metrics-file",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "s", cmd.Flags().Lookup("select").Shorthand)
}

func TestJoinStatements(t *testing.T) {
	stmts := []pipeline.Statement{
		{Phase: plan.PhaseEvolve, Target: core.TableRef{Schema: "rawcore", Name: "customer"}, SQL: "ALTER TABLE a ADD COLUMN b INT"},
		{Phase: plan.PhaseMerge, Target: core.TableRef{Schema: "rawcore", Name: "customer"}, SQL: "MERGE INTO a;"},
	}
	got := joinStatements(stmts)
	assert.Equal(t, "-- evolve: rawcore.customer\nALTER TABLE a ADD COLUMN b INT;\n\n-- merge: rawcore.customer\nMERGE INTO a;", got)
	assert.Empty(t, joinStatements(nil))
}

func TestRunOutput(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &engine.Result{
		BatchRunID: "b1",
		Status:     core.RunStatusPartial,
		Policy:     core.ExecutionPolicy{Execute: true},
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Steps: []engine.StepResult{
			{Dataset: "stage", Status: core.StepStatusError, Attempts: 2, Err: errors.New("boom")},
			{Dataset: "customer", Status: core.StepStatusSkipped, SkipKind: core.SkipBlocked, BlockedBy: "stage"},
		},
	}

	out := runOutput(res, "duckdb")
	assert.Equal(t, "b1", out.BatchRunID)
	assert.Equal(t, "partial", out.Status)
	assert.True(t, out.Execute)
	assert.Equal(t, int64(1500), out.DurationMS)
	require.Len(t, out.Steps, 2)
	assert.Equal(t, "boom", out.Steps[0].Error)
	assert.Equal(t, 2, out.Steps[0].Attempts)
	assert.Equal(t, "blocked", out.Steps[1].SkipKind)
	assert.Equal(t, "stage", out.Steps[1].BlockedBy)

	tr := testutil.NewTestRendererMarkdown()
	renderRun(tr.Renderer, res)
	assert.Contains(t, tr.Output(), "| stage | error | 2 |")
	assert.Contains(t, tr.Output(), "blocked by stage")
	assert.Contains(t, tr.ErrorOutput(), "Run partial")
	testutil.AssertNoANSI(t, tr.Output())
}

func TestRunFailedError(t *testing.T) {
	cause := &core.TypeDriftBlockingError{Dataset: "customer", Column: "qty"}
	err := error(&RunFailedError{BatchRunID: "b1", Status: "blocked", Err: cause})

	assert.Contains(t, err.Error(), "run b1 blocked: ")
	var de *core.TypeDriftBlockingError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "run b1 failed", (&RunFailedError{BatchRunID: "b1", Status: "failed"}).Error())
}

func TestDriftDataset(t *testing.T) {
	table := core.TableRef{Schema: "rawcore", Name: "customer"}
	dp := &pipeline.DatasetPlan{
		Dataset: &core.Dataset{Name: "customer"},
		Drift: &drift.Result{Findings: []drift.Finding{
			{Table: table, Column: "qty", Declared: "INTEGER", Physical: "SMALLINT", Change: drift.Widening, Action: drift.ActionAlterType},
			{Table: table, Column: "name", Declared: "VARCHAR", Physical: "VARCHAR", Change: drift.Equivalent, Action: drift.ActionNone},
		}},
		Statements: []pipeline.Statement{
			{Phase: plan.PhaseEvolve, Target: table, SQL: "ALTER TABLE rawcore.customer ALTER COLUMN qty TYPE INTEGER"},
			{Phase: plan.PhaseMerge, Target: table, SQL: "UPDATE ..."},
		},
	}

	d := driftDataset(dp, nil)
	assert.Equal(t, driftEvolve, d.Status)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, "qty", d.Findings[0].Column)
	assert.Equal(t, "widening", d.Findings[0].Change)
	require.Len(t, d.Statements, 1)
	assert.Equal(t, "evolve", d.Statements[0].Phase)

	d = driftDataset(dp, &core.TypeDriftBlockingError{Dataset: "customer", Column: "qty"})
	assert.Equal(t, driftBlocked, d.Status)
	assert.Empty(t, d.Statements)
	assert.NotEmpty(t, d.Error)

	d = driftDataset(dp, errors.New("boom"))
	assert.Equal(t, driftError, d.Status)

	d = driftDataset(&pipeline.DatasetPlan{Dataset: &core.Dataset{Name: "v"}}, nil)
	assert.Equal(t, driftOK, d.Status)
}

func TestRenderDrift_Markdown(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()
	renderDrift(tr.Renderer, output.DriftOutput{
		Dialect: "duckdb",
		Blocked: true,
		Datasets: []output.DriftDataset{
			{Dataset: "customer", Status: driftBlocked, Error: "schema drift blocked"},
			{Dataset: "customer_v", Status: driftOK},
		},
	})
	assert.Contains(t, tr.Output(), "# Schema drift (duckdb)")
	assert.Contains(t, tr.Output(), "- customer: blocked (schema drift blocked)")
	assert.Contains(t, tr.Output(), "- customer_v: success")
	assert.Contains(t, tr.ErrorOutput(), "Drift blocks the run")
}
