package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [batch_run_id]",
		Short: "Show persisted run snapshots",
		Long: `Show runs persisted to the state database.

Without arguments the newest snapshots are listed. With a batch run id the
snapshot is shown together with every recorded attempt of that run.
Snapshots are only written by runs with --write-execution-snapshot.`,
		Example: `  # List the last 10 runs
  leapmeta runs --limit 10

  # Show the attempts of one run
  leapmeta runs 0a6c4d1e-... --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.AddCommand(newRunsPruneCommand())
	return cmd
}

func newRunsPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete run snapshots older than a duration",
		Example: `  leapmeta runs prune --older-than 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cmdCtx := NewCommandContextWithoutEngine(cmd)
			store, err := cmdCtx.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.DeleteSnapshotsBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("failed to prune snapshots: %w", err)
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Deleted %d snapshot(s)", n))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete snapshots of runs started before now minus this duration")
	return cmd
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snapshots, err := store.RecentSnapshots(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]output.RunSummary, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, runSummary(s))
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Runs")
	if len(out) == 0 {
		r.Muted("No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(out))
	for _, s := range out {
		rows = append(rows, []string{
			s.BatchRunID,
			s.Status,
			s.Dialect,
			runMode(s.Execute),
			s.StartedAt.Local().Format(time.DateTime),
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
		})
	}
	r.Table([]string{"Batch Run", "Status", "Dialect", "Mode", "Started", "Duration"}, rows)
	return nil
}

func runShowRun(cmd *cobra.Command, batchRunID string) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snap, err := store.Snapshot(cmd.Context(), batchRunID)
	if err != nil {
		return err
	}
	events, err := store.Events(cmd.Context(), batchRunID)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	out := output.RunDetailOutput{
		Run:    runSummary(*snap),
		Events: make([]output.EventOutput, 0, len(events)),
	}
	for _, e := range events {
		out.Events = append(out.Events, output.EventOutput{
			Dataset:      e.Dataset,
			AttemptNo:    e.AttemptNo,
			Status:       string(e.Status),
			SkipKind:     string(e.SkipKind),
			BlockedBy:    e.BlockedBy,
			StartedAt:    e.StartedAt,
			FinishedAt:   e.FinishedAt,
			RowsAffected: e.RowsAffected,
			Error:        e.Error,
		})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Run %s", out.Run.BatchRunID))
	r.Println(output.FormatKeyValue("Status", out.Run.Status))
	r.Println(output.FormatKeyValue("Dialect", out.Run.Dialect))
	r.Println(output.FormatKeyValue("Mode", runMode(out.Run.Execute)))
	r.Println(output.FormatKeyValue("Started", out.Run.StartedAt.Local().Format(time.DateTime)))
	r.Println("")

	rows := make([][]string, 0, len(out.Events))
	for _, e := range out.Events {
		status := e.Status
		if e.SkipKind != "" {
			status += "/" + e.SkipKind
		}
		detail := e.Error
		if e.BlockedBy != "" {
			detail = "blocked by " + e.BlockedBy
		}
		rows = append(rows, []string{e.Dataset, strconv.Itoa(e.AttemptNo), status, strconv.FormatInt(e.RowsAffected, 10), detail})
	}
	r.Table([]string{"Dataset", "Attempt", "Status", "Rows", "Detail"}, rows)
	return nil
}

func runSummary(s core.RunSnapshot) output.RunSummary {
	return output.RunSummary{
		BatchRunID: s.BatchRunID,
		Status:     string(s.Status),
		Dialect:    s.Dialect,
		Execute:    s.Policy.Execute,
		StartedAt:  s.StartedAt,
		DurationMS: s.FinishedAt.Sub(s.StartedAt).Milliseconds(),
		Counts:     s.Counts,
	}
}

func runMode(execute bool) string {
	if execute {
		return "execute"
	}
	return "preview"
}
