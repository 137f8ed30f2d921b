package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	sel := &engine.Selection{}

	cmd := &cobra.Command{
		Use:   "render [dataset...]",
		Short: "Render the SQL statements of datasets without executing them",
		Long: `Render every SQL statement a run would execute, in execution order.

No connection to the target is made: targets are assumed to exist with the
declared schema, so the full incremental SQL (merge, delete detection and
history statements) is shown.

Output adapts to environment:
  - Terminal: Plain SQL (suitable for syntax highlighting)
  - Piped/Scripted: Markdown with code blocks`,
		Example: `  # Render all datasets
  leapmeta render

  # Render one dataset and everything it depends on
  leapmeta render customer_v --upstream

  # Render for another dialect
  leapmeta render customer --dialect snowflake

  # Render as JSON
  leapmeta render customer --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel.Datasets = append(sel.Datasets, args...)
			return runRender(cmd, *sel)
		},
	}

	selectionFlags(cmd, sel)
	return cmd
}

func runRender(cmd *cobra.Command, sel engine.Selection) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	plans, planErr := cmdCtx.Engine.Render(sel)
	if plans == nil && planErr != nil {
		return planErr
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := make([]output.RenderOutput, 0, len(plans))
		for _, dp := range plans {
			out = append(out, output.RenderOutput{
				Dataset:    dp.Dataset.Name,
				Table:      dp.Dataset.Table().String(),
				Statements: statementsOutput(dp.Statements),
			})
		}
		if err := r.JSON(out); err != nil {
			return err
		}
	case output.ModeMarkdown:
		for _, dp := range plans {
			r.Println(output.FormatHeader(2, fmt.Sprintf("%s (%s)", dp.Dataset.Name, dp.Dataset.Table())))
			r.Println("")
			r.Println(output.FormatCodeBlock("sql", joinStatements(dp.Statements)))
			r.Println("")
		}
	default:
		for _, dp := range plans {
			r.Printf("-- %s\n", dp.Dataset.Name)
			r.Println(joinStatements(dp.Statements))
		}
	}

	if planErr != nil {
		return fmt.Errorf("failed to render datasets: %w", planErr)
	}
	return nil
}

// joinStatements renders statements as one script, each preceded by its
// phase and target.
func joinStatements(stmts []pipeline.Statement) string {
	var b strings.Builder
	for i, s := range stmts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s: %s\n", s.Phase, s.Target)
		b.WriteString(s.SQL)
		if !strings.HasSuffix(s.SQL, ";") {
			b.WriteString(";")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
