package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/drift"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
	"github.com/spf13/cobra"
)

// Drift statuses.
const (
	driftOK      = "ok"
	driftEvolve  = "evolve"
	driftBlocked = "blocked"
	driftError   = "error"
)

// NewDriftCommand creates the drift command.
func NewDriftCommand() *cobra.Command {
	sel := &engine.Selection{}

	cmd := &cobra.Command{
		Use:   "drift [dataset...]",
		Short: "Compare declared schemas against the target",
		Long: `Introspect the target and run the schema drift preflight without executing
anything.

Widening type changes, added columns and renames are listed with the DDL that
would evolve the target. Narrowing or incompatible type changes block: a run
over the same selection would stop before its first statement. The command
exits non-zero when any dataset is blocked or fails to plan.`,
		Example: `  # Check every dataset
  leapmeta drift

  # Check one dataset as JSON
  leapmeta drift customer --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel.Datasets = append(sel.Datasets, args...)
			return runDrift(cmd, *sel)
		},
	}

	selectionFlags(cmd, sel)
	return cmd
}

func runDrift(cmd *cobra.Command, sel engine.Selection) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	report, err := cmdCtx.Engine.Drift(cmd.Context(), sel)
	if err != nil {
		return err
	}

	out := driftOutput(report, cmdCtx.Engine.Dialect().Name())

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	default:
		renderDrift(r, out)
	}

	return report.Err()
}

func driftOutput(report *engine.DriftReport, dialect string) output.DriftOutput {
	out := output.DriftOutput{
		Dialect:  dialect,
		Blocked:  report.Blocking != nil,
		Datasets: make([]output.DriftDataset, 0, len(report.Plans)),
	}
	for _, dp := range report.Plans {
		out.Datasets = append(out.Datasets, driftDataset(dp, report.Failures[dp.Dataset.Name]))
	}
	return out
}

func driftDataset(dp *pipeline.DatasetPlan, planErr error) output.DriftDataset {
	d := output.DriftDataset{Dataset: dp.Dataset.Name, Status: driftOK}

	var evolve []pipeline.Statement
	for _, s := range dp.Statements {
		if s.Phase == plan.PhaseEvolve {
			evolve = append(evolve, s)
		}
	}
	if dp.Drift != nil {
		for _, f := range dp.Drift.Findings {
			if f.Action == drift.ActionNone {
				continue
			}
			d.Findings = append(d.Findings, output.DriftFinding{
				Table:    f.Table.String(),
				Column:   f.Column,
				Declared: f.Declared,
				Physical: f.Physical,
				Change:   string(f.Change),
				Action:   string(f.Action),
			})
		}
	}
	if len(evolve) > 0 || len(d.Findings) > 0 {
		d.Status = driftEvolve
		d.Statements = statementsOutput(evolve)
	}

	if planErr != nil {
		d.Status = driftError
		var de *core.TypeDriftBlockingError
		if errors.As(planErr, &de) {
			d.Status = driftBlocked
		}
		d.Error = planErr.Error()
		d.Statements = nil
	}
	return d
}

func renderDrift(r *output.Renderer, out output.DriftOutput) {
	r.Header(1, fmt.Sprintf("Schema drift (%s)", out.Dialect))

	for _, d := range out.Datasets {
		detail := ""
		switch d.Status {
		case driftEvolve:
			detail = fmt.Sprintf("%d statement(s)", len(d.Statements))
		case driftBlocked, driftError:
			detail = d.Error
		}
		r.StatusLine(d.Dataset, statusForDrift(d.Status), detail)
	}

	var rows [][]string
	for _, d := range out.Datasets {
		for _, f := range d.Findings {
			rows = append(rows, []string{d.Dataset, f.Table, f.Column, f.Physical, f.Declared, f.Change, f.Action})
		}
	}
	if len(rows) > 0 {
		r.Println("")
		r.Table([]string{"Dataset", "Table", "Column", "Physical", "Declared", "Change", "Action"}, rows)
	}

	r.Println("")
	if out.Blocked {
		r.Error("Drift blocks the run; resolve the blocked datasets first")
		return
	}
	r.Success("No blocking drift")
}

// statusForDrift maps a drift status onto the status icons of the renderer.
func statusForDrift(status string) string {
	switch status {
	case driftOK:
		return "success"
	case driftEvolve:
		return "partial"
	case driftBlocked:
		return "blocked"
	default:
		return "error"
	}
}
