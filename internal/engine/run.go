package engine

// run.go - planning and execution of a batch run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Selection picks the datasets of a run. An empty selection means all.
type Selection struct {
	Datasets   []string
	Upstream   bool
	Downstream bool
}

// RunOptions configures a batch run.
type RunOptions struct {
	Selection
	Policy core.ExecutionPolicy
	// WriteSnapshot persists the batch snapshot document.
	WriteSnapshot bool
}

// selected returns the datasets of sel in deterministic topological order.
func (e *Engine) selected(sel Selection) ([]*core.Dataset, error) {
	graph := e.graph
	if len(sel.Datasets) > 0 {
		ids, err := e.graph.Select(sel.Datasets, sel.Upstream, sel.Downstream)
		if err != nil {
			return nil, err
		}
		graph = e.graph.Subgraph(ids)
	}
	nodes, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	datasets := make([]*core.Dataset, len(nodes))
	for i, n := range nodes {
		datasets[i] = n.Dataset
	}
	return datasets, nil
}

func (e *Engine) pipeline(batchRunID string, at time.Time, preview bool) (*pipeline.Pipeline, error) {
	return pipeline.New(e.catalog, pipeline.Options{
		Dialect: e.dialect,
		Pepper:  e.pepper,
		RunID:   batchRunID,
		At:      at,
		Preview: preview,
	}, e.logger)
}

// Render plans the selection without a connection. Plans of datasets that
// failed are still returned when available; the errors are joined.
func (e *Engine) Render(sel Selection) ([]*pipeline.DatasetPlan, error) {
	datasets, err := e.selected(sel)
	if err != nil {
		return nil, err
	}
	p, err := e.pipeline("preview", time.Now(), true)
	if err != nil {
		return nil, err
	}

	plans, failures, _ := p.Preflight(datasets, nil)
	return ordered(datasets, plans), joinFailures(datasets, failures)
}

// DriftReport is the preflight outcome of a selection.
type DriftReport struct {
	// Plans holds the plan of every dataset that produced one, in run order.
	Plans []*pipeline.DatasetPlan
	// Failures holds per-dataset planning errors.
	Failures map[string]error
	// Blocking joins the failures that block a run.
	Blocking error
}

// Err joins every failure of the report.
func (r *DriftReport) Err() error {
	var errs []error
	for _, dp := range r.Plans {
		if err := r.Failures[dp.Dataset.Name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dp.Dataset.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Drift connects to the target, introspects the selection and plans it
// without executing anything. Per-dataset failures are reported, not returned.
func (e *Engine) Drift(ctx context.Context, sel Selection) (*DriftReport, error) {
	datasets, err := e.selected(sel)
	if err != nil {
		return nil, err
	}
	if err := e.ensureConnected(ctx); err != nil {
		return nil, err
	}
	schemas, err := pipeline.Introspect(ctx, e.exec, datasets)
	if err != nil {
		return nil, err
	}
	p, err := e.pipeline("drift", time.Now(), false)
	if err != nil {
		return nil, err
	}
	plans, failures, blocking := p.Preflight(datasets, schemas)
	return &DriftReport{
		Plans:    ordered(datasets, plans),
		Failures: failures,
		Blocking: blocking,
	}, nil
}

// Run plans and executes the selection. Without Policy.Execute nothing is
// connected and each step records a single rendered attempt.
//
// Blocking schema drift on any dataset stops the whole run before a single
// statement executes: the result then has status blocked and the returned
// error joins the drift errors. Step failures do not produce an error;
// inspect Result.Failed.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	batchRunID := uuid.NewString()
	started := time.Now()
	logger := e.logger.With("batch_run_id", batchRunID)
	logger.Info("starting run", "dialect", e.dialect.Name(), "execute", opts.Policy.Execute)

	datasets, err := e.selected(opts.Selection)
	if err != nil {
		return nil, err
	}

	var schemas core.Schemas
	if opts.Policy.Execute {
		if err := e.ensureConnected(ctx); err != nil {
			return nil, err
		}
		if schemas, err = pipeline.Introspect(ctx, e.exec, datasets); err != nil {
			return nil, err
		}
	}

	p, err := e.pipeline(batchRunID, started, !opts.Policy.Execute)
	if err != nil {
		return nil, err
	}

	logger.Debug("preflight", "datasets", len(datasets))
	plans, failures, driftErr := p.Preflight(datasets, schemas)

	tasks := make([]Task, len(datasets))
	for i, ds := range datasets {
		tasks[i] = Task{Dataset: ds.Name, Upstreams: ds.Dependencies(), PlanErr: failures[ds.Name]}
		if dp := plans[ds.Name]; dp != nil && tasks[i].PlanErr == nil {
			tasks[i].Statements = dp.Statements
		}
	}

	if driftErr != nil {
		logger.Error("run blocked by schema drift", "error", driftErr)
		res := blockedResult(batchRunID, opts.Policy, started, tasks)
		e.writeSnapshot(ctx, opts, res, tasks)
		return res, driftErr
	}

	orch := NewOrchestrator(e.exec, e.store, e.metrics, logger)
	res := orch.Run(ctx, batchRunID, tasks, opts.Policy)
	e.writeSnapshot(ctx, opts, res, tasks)
	return res, nil
}

// blockedResult describes a run stopped in preflight: datasets that failed
// to plan are errors, every other step was aborted before it started.
func blockedResult(batchRunID string, policy core.ExecutionPolicy, started time.Time, tasks []Task) *Result {
	res := &Result{
		BatchRunID: batchRunID,
		Policy:     policy,
		Status:     core.RunStatusBlocked,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Steps:      make([]StepResult, len(tasks)),
	}
	for i, t := range tasks {
		if t.PlanErr != nil {
			res.Steps[i] = StepResult{Dataset: t.Dataset, Status: core.StepStatusError, Err: t.PlanErr}
			continue
		}
		res.Steps[i] = StepResult{Dataset: t.Dataset, Status: core.StepStatusSkipped, SkipKind: core.SkipAborted}
	}
	return res
}

func (e *Engine) writeSnapshot(ctx context.Context, opts RunOptions, res *Result, tasks []Task) {
	if !opts.WriteSnapshot || e.store == nil {
		return
	}
	snap := Snapshot(res, tasks, e.dialect.Name())
	if err := e.store.WriteSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		e.logger.Warn("failed to write run snapshot", "batch_run_id", res.BatchRunID, "error", err)
	}
}

func ordered(datasets []*core.Dataset, plans map[string]*pipeline.DatasetPlan) []*pipeline.DatasetPlan {
	out := make([]*pipeline.DatasetPlan, 0, len(plans))
	for _, ds := range datasets {
		if dp := plans[ds.Name]; dp != nil {
			out = append(out, dp)
		}
	}
	return out
}

func joinFailures(datasets []*core.Dataset, failures map[string]error) error {
	var errs []error
	for _, ds := range datasets {
		if err := failures[ds.Name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ds.Name, err))
		}
	}
	return errors.Join(errs...)
}
