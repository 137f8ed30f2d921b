package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// RunFailedError is returned when a run ends with failed steps or is
// blocked in preflight. It gives the process a non-zero exit status.
type RunFailedError struct {
	BatchRunID string
	Status     string
	Err        error
}

func (e *RunFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("run %s %s", e.BatchRunID, e.Status)
	}
	return fmt.Sprintf("run %s %s: %v", e.BatchRunID, e.Status, e.Err)
}

func (e *RunFailedError) Unwrap() error { return e.Err }

// RunOptions holds options for the run command.
type RunOptions struct {
	engine.Selection
	Execute bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run datasets in dependency order",
		Long: `Plan and run datasets in dependency order.

Without --execute nothing is connected: every step is rendered and recorded
as a single successful attempt. With --execute the target is introspected,
schema drift is checked for every selected dataset before anything runs, and
the statements are executed.

A failed step blocks its downstream datasets. Without --continue-on-error the
run stops at the first failure and every step not yet started is aborted.
The command exits non-zero if any step failed (unless --continue-on-error)
or if schema drift blocked the run.`,
		Example: `  # Preview a run
  leapmeta run

  # Execute all datasets
  leapmeta run --execute

  # Execute one dataset and its dependents, retrying transient failures
  leapmeta run --execute --select customer --downstream --max-retries 2

  # Keep independent branches running and persist the run snapshot
  leapmeta run --execute --continue-on-error --write-execution-snapshot

  # Export run metrics for the node_exporter textfile collector
  leapmeta run --execute --metrics-file /var/lib/node_exporter/leapmeta.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	selectionFlags(cmd, &opts.Selection)
	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "Execute statements against the target (default: render only)")
	cmd.Flags().Bool("continue-on-error", false, "Keep running independent datasets after a failure")
	cmd.Flags().Int("max-retries", 0, "Retries after a failed attempt")
	cmd.Flags().Duration("retry-backoff", 0, "Initial delay between attempts (exponential)")
	cmd.Flags().Int("parallelism", 0, "Maximum datasets executing concurrently")
	cmd.Flags().Bool("debug-execution", false, "Log every statement before it is executed")
	cmd.Flags().Bool("write-execution-snapshot", false, "Persist the run snapshot to the state database")
	cmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer
	policy := cfg.Policy(opts.Execute)

	res, runErr := cmdCtx.Engine.Run(cmd.Context(), engine.RunOptions{
		Selection:     opts.Selection,
		Policy:        policy,
		WriteSnapshot: cfg.Execution.WriteSnapshot,
	})
	if res == nil {
		return runErr
	}
	if err := cmdCtx.WriteMetrics(); err != nil {
		cmdCtx.Logger.Warn("metrics not written", "error", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := runOutput(res, cmdCtx.Engine.Dialect().Name())
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := r.JSON(out); err != nil {
			return err
		}
	default:
		renderRun(r, res)
	}

	if runErr != nil || res.Failed() {
		return &RunFailedError{
			BatchRunID: res.BatchRunID,
			Status:     string(res.Status),
			Err:        errors.Join(runErr, res.Err()),
		}
	}
	return nil
}

func runOutput(res *engine.Result, dialect string) output.RunOutput {
	out := output.RunOutput{
		BatchRunID: res.BatchRunID,
		Status:     string(res.Status),
		Execute:    res.Policy.Execute,
		Dialect:    dialect,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		DurationMS: res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
		Counts:     res.Counts(),
		Steps:      make([]output.StepOutput, 0, len(res.Steps)),
	}
	for _, s := range res.Steps {
		step := output.StepOutput{
			Dataset:      s.Dataset,
			Status:       string(s.Status),
			SkipKind:     string(s.SkipKind),
			BlockedBy:    s.BlockedBy,
			Attempts:     s.Attempts,
			RowsAffected: s.RowsAffected,
			DurationMS:   s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		out.Steps = append(out.Steps, step)
	}
	return out
}

func renderRun(r *output.Renderer, res *engine.Result) {
	mode := "preview"
	if res.Policy.Execute {
		mode = "execute"
	}
	r.Header(1, fmt.Sprintf("Run %s (%s)", res.BatchRunID, mode))

	rows := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		status := string(s.Status)
		if s.SkipKind != "" {
			status += "/" + string(s.SkipKind)
		}
		detail := ""
		switch {
		case s.BlockedBy != "":
			detail = "blocked by " + s.BlockedBy
		case s.Err != nil:
			detail = s.Err.Error()
		}
		rows = append(rows, []string{
			s.Dataset,
			status,
			strconv.Itoa(s.Attempts),
			strconv.FormatInt(s.RowsAffected, 10),
			s.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}
	r.Table([]string{"Dataset", "Status", "Attempts", "Rows", "Duration", "Detail"}, rows)
	r.Println("")

	summary := fmt.Sprintf("Run %s in %s", res.Status, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if res.Status == core.RunStatusSuccess {
		r.Success(summary)
		return
	}
	r.Error(summary)
}
