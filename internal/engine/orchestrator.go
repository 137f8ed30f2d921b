package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is one dataset step handed to the orchestrator.
type Task struct {
	Dataset    string
	Upstreams  []string
	Statements []pipeline.Statement
	// PlanErr fails the step without attempting it.
	PlanErr error
}

// StepResult is the terminal outcome of one step.
type StepResult struct {
	Dataset      string
	Status       core.StepStatus
	SkipKind     core.SkipKind
	BlockedBy    string
	Attempts     int
	RowsAffected int64
	Duration     time.Duration
	Err          error
}

// Result is the outcome of one batch run. Steps keep task order.
type Result struct {
	BatchRunID string
	Policy     core.ExecutionPolicy
	Status     core.RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
	Events     []core.AttemptEvent
}

// Step returns the result of the named dataset.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Dataset == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Counts tallies steps by status, with skipped steps split by kind.
func (r *Result) Counts() map[string]int {
	counts := make(map[string]int)
	for _, s := range r.Steps {
		key := string(s.Status)
		if s.SkipKind != core.SkipNone {
			key += "/" + string(s.SkipKind)
		}
		counts[key]++
	}
	return counts
}

// Failed reports whether the run must exit non-zero: a step errored and
// the policy did not allow continuing past errors.
func (r *Result) Failed() bool {
	if r.Policy.ContinueOnError {
		return false
	}
	return slices.ContainsFunc(r.Steps, func(s StepResult) bool { return s.Status == core.StepStatusError })
}

// Err joins the errors of all failed steps.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

func runStatus(steps []StepResult) core.RunStatus {
	var ok, failed int
	for _, s := range steps {
		switch s.Status {
		case core.StepStatusSuccess:
			ok++
		case core.StepStatusError:
			failed++
		}
	}
	switch {
	case ok == len(steps):
		return core.RunStatusSuccess
	case ok == 0:
		return core.RunStatusFailed
	default:
		return core.RunStatusPartial
	}
}

// Orchestrator executes tasks in dependency order under a policy.
type Orchestrator struct {
	exec     core.Executor
	recorder core.Recorder
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. exec may be nil when only
// previewing; recorder and metrics are optional.
func NewOrchestrator(exec core.Executor, recorder core.Recorder, metrics *Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		exec:     exec,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes tasks. Tasks must be in topological order; upstreams that
// are not part of tasks count as satisfied.
//
// A step starts only after all of its upstreams reached a terminal state.
// Once a step errors without ContinueOnError, every step that has not
// started yet is skipped as aborted; steps already running finish.
// Otherwise a step whose upstream did not succeed is skipped as blocked.
func (o *Orchestrator) Run(ctx context.Context, batchRunID string, tasks []Task, policy core.ExecutionPolicy) *Result {
	parallelism := max(policy.Parallelism, 1)
	result := &Result{
		BatchRunID: batchRunID,
		Policy:     policy,
		StartedAt:  o.now(),
		Steps:      make([]StepResult, len(tasks)),
	}

	o.logger.Info("starting batch run",
		"batch_run_id", batchRunID,
		"steps", len(tasks),
		"execute", policy.Execute,
		"continue_on_error", policy.ContinueOnError,
		"max_retries", policy.MaxRetries,
		"parallelism", parallelism)

	index := make(map[string]int, len(tasks))
	done := make([]chan struct{}, len(tasks))
	for i, t := range tasks {
		index[t.Dataset] = i
		done[i] = make(chan struct{})
	}

	var (
		aborted atomic.Bool
		sem     = semaphore.NewWeighted(int64(parallelism))
		g       errgroup.Group
	)

	// Every step emits at most one event per attempt, so sends never block.
	// The collector owns result.Events and the recorder.
	events := make(chan core.AttemptEvent, len(tasks)*(1+max(policy.MaxRetries, 0)))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range events {
			result.Events = append(result.Events, e)
			o.record(ctx, e)
		}
	}()
	emit := func(e core.AttemptEvent) { events <- e }

	for i, task := range tasks {
		g.Go(func() error {
			defer close(done[i])

			var upstreams []int
			for _, up := range task.Upstreams {
				if j, ok := index[up]; ok && j != i {
					<-done[j]
					upstreams = append(upstreams, j)
				}
			}

			if aborted.Load() || ctx.Err() != nil {
				result.Steps[i] = o.skip(batchRunID, task.Dataset, core.SkipAborted, "", emit)
				return nil
			}
			if cause := blockedBy(result.Steps, upstreams); cause != "" {
				result.Steps[i] = o.skip(batchRunID, task.Dataset, core.SkipBlocked, cause, emit)
				return nil
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				result.Steps[i] = o.skip(batchRunID, task.Dataset, core.SkipAborted, "", emit)
				return nil
			}
			defer sem.Release(1)
			// Fail-fast may have tripped while waiting for a slot.
			if aborted.Load() {
				result.Steps[i] = o.skip(batchRunID, task.Dataset, core.SkipAborted, "", emit)
				return nil
			}

			step := o.runStep(ctx, batchRunID, task, policy, emit)
			result.Steps[i] = step
			if step.Status == core.StepStatusError && !policy.ContinueOnError {
				aborted.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(events)
	<-collected

	result.FinishedAt = o.now()
	result.Status = runStatus(result.Steps)
	slices.SortStableFunc(result.Events, func(a, b core.AttemptEvent) int {
		if c := index[a.Dataset] - index[b.Dataset]; c != 0 {
			return c
		}
		return a.AttemptNo - b.AttemptNo
	})

	o.logger.Info("batch run finished",
		"batch_run_id", batchRunID,
		"status", result.Status,
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds())
	return result
}

// blockedBy returns the root cause of a blocked step: the failed upstream,
// or the cause an upstream was itself blocked by.
func blockedBy(steps []StepResult, upstreams []int) string {
	var causes []string
	for _, j := range upstreams {
		up := steps[j]
		switch {
		case up.Status == core.StepStatusSuccess:
		case up.SkipKind == core.SkipBlocked && up.BlockedBy != "":
			causes = append(causes, up.BlockedBy)
		default:
			causes = append(causes, up.Dataset)
		}
	}
	if len(causes) == 0 {
		return ""
	}
	slices.Sort(causes)
	return causes[0]
}

func (o *Orchestrator) skip(batchRunID, dataset string, kind core.SkipKind, cause string, emit func(core.AttemptEvent)) StepResult {
	now := o.now()
	o.logger.Info("step skipped", "batch_run_id", batchRunID, "dataset", dataset, "skip_kind", kind, "blocked_by", cause)
	emit(core.AttemptEvent{
		BatchRunID: batchRunID,
		Dataset:    dataset,
		Status:     core.StepStatusSkipped,
		SkipKind:   kind,
		BlockedBy:  cause,
		StartedAt:  now,
		FinishedAt: now,
	})
	o.metrics.step(core.StepStatusSkipped, kind)
	return StepResult{Dataset: dataset, Status: core.StepStatusSkipped, SkipKind: kind, BlockedBy: cause}
}

// runStep runs the attempts of one step sequentially. A retry resumes at
// the statement that failed.
func (o *Orchestrator) runStep(ctx context.Context, batchRunID string, task Task, policy core.ExecutionPolicy, emit func(core.AttemptEvent)) StepResult {
	start := o.now()
	step := StepResult{Dataset: task.Dataset}
	finish := func() StepResult {
		step.Duration = o.now().Sub(start)
		o.metrics.step(step.Status, core.SkipNone)
		o.metrics.duration(task.Dataset, step.Duration)
		return step
	}

	if task.PlanErr != nil {
		step.Status, step.Err = core.StepStatusError, task.PlanErr
		o.logger.Error("step failed to plan", "batch_run_id", batchRunID, "dataset", task.Dataset, "error", task.PlanErr)
		emit(core.AttemptEvent{
			BatchRunID: batchRunID,
			Dataset:    task.Dataset,
			Status:     core.StepStatusError,
			StartedAt:  start,
			FinishedAt: o.now(),
			Error:      task.PlanErr.Error(),
		})
		return finish()
	}

	if !policy.Execute {
		for _, stmt := range task.Statements {
			o.debugStatement(policy, task.Dataset, 1, stmt)
		}
		step.Status, step.Attempts = core.StepStatusSuccess, 1
		emit(core.AttemptEvent{
			BatchRunID: batchRunID,
			Dataset:    task.Dataset,
			AttemptNo:  1,
			Status:     core.StepStatusSuccess,
			StartedAt:  start,
			FinishedAt: o.now(),
		})
		o.metrics.attempt(task.Dataset, core.StepStatusSuccess)
		return finish()
	}

	attempts := 1 + max(policy.MaxRetries, 0)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.RetryBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	next := 0
	var lastErr error
	for n := 1; n <= attempts; n++ {
		step.Attempts = n
		attemptStart := o.now()
		rows, resume, err := o.execute(ctx, task, n, next, policy)
		next = resume
		step.RowsAffected += rows

		event := core.AttemptEvent{
			BatchRunID:   batchRunID,
			Dataset:      task.Dataset,
			AttemptNo:    n,
			Status:       core.StepStatusSuccess,
			StartedAt:    attemptStart,
			FinishedAt:   o.now(),
			RowsAffected: rows,
		}
		if err != nil {
			event.Status, event.Error = core.StepStatusError, err.Error()
		}
		emit(event)
		o.metrics.attempt(task.Dataset, event.Status)

		if err == nil {
			step.Status = core.StepStatusSuccess
			o.logger.Info("step completed", "batch_run_id", batchRunID, "dataset", task.Dataset,
				"attempts", n, "rows_affected", step.RowsAffected)
			return finish()
		}
		lastErr = err
		o.logger.Warn("step attempt failed", "batch_run_id", batchRunID, "dataset", task.Dataset,
			"attempt", n, "max_attempts", attempts, "error", err)

		if n == attempts || ctx.Err() != nil {
			break
		}
		if err := wait(ctx, bo.NextBackOff()); err != nil {
			break
		}
	}

	step.Status = core.StepStatusError
	step.Err = lastErr
	if policy.MaxRetries > 0 {
		step.Err = &core.RetryExhaustedError{Dataset: task.Dataset, Attempts: step.Attempts, Last: lastErr}
	}
	o.logger.Error("step failed", "batch_run_id", batchRunID, "dataset", task.Dataset, "error", step.Err)
	return finish()
}

// execute runs statements from index from and returns the rows affected
// and the index to resume at.
func (o *Orchestrator) execute(ctx context.Context, task Task, attempt, from int, policy core.ExecutionPolicy) (int64, int, error) {
	if o.exec == nil {
		return 0, from, &core.ExecutionError{Dataset: task.Dataset, Attempt: attempt, Err: errors.New("no executor configured")}
	}
	var rows int64
	for i := from; i < len(task.Statements); i++ {
		stmt := task.Statements[i]
		o.debugStatement(policy, task.Dataset, attempt, stmt)
		n, err := o.exec.Exec(ctx, stmt.SQL)
		if err != nil {
			return rows, i, &core.ExecutionError{Dataset: task.Dataset, Phase: string(stmt.Phase), Attempt: attempt, Err: err}
		}
		if n > 0 {
			rows += n
		}
	}
	return rows, len(task.Statements), nil
}

func (o *Orchestrator) debugStatement(policy core.ExecutionPolicy, dataset string, attempt int, stmt pipeline.Statement) {
	if !policy.Debug {
		return
	}
	o.logger.Info("statement",
		"dataset", dataset,
		"attempt", attempt,
		"phase", stmt.Phase,
		"target", stmt.Target.String(),
		"sql", stmt.SQL)
}

// record writes an event through the recorder. Failures are logged and
// dropped.
func (o *Orchestrator) record(ctx context.Context, e core.AttemptEvent) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordAttempt(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn("failed to record attempt", "batch_run_id", e.BatchRunID, "dataset", e.Dataset,
			"attempt", e.AttemptNo, "error", err)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
