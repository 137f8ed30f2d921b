package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the dependency graph",
		Long: `Display the dependency graph (DAG) of all datasets.

Datasets are grouped by execution level: every dataset of a level only
depends on datasets of earlier levels, so a level runs in parallel.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  leapmeta dag

  # Output as JSON
  leapmeta dag --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer
	graph := eng.Graph()

	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(dagOutput(graph, eng.Catalog(), levels))
	case output.ModeMarkdown:
		dagMarkdown(r, graph, levels)
	default:
		dagText(r, graph, levels)
	}
	return nil
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			deps := graph.GetParents(name)
			children := graph.GetChildren(name)

			r.Printf("  %s\n", styles.ModelPath.Render(name))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d datasets, %d dependencies", graph.NodeCount(), graph.EdgeCount())))
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string) {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))

		for _, name := range level {
			deps := graph.GetParents(name)
			children := graph.GetChildren(name)

			r.Printf("- %s\n", name)
			if len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Datasets", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))
}

func dagOutput(graph GraphQuerier, catalog *core.Catalog, levels [][]string) output.DAGOutput {
	out := output.DAGOutput{
		Levels:        make([]output.DAGLevel, 0, len(levels)),
		TotalDatasets: graph.NodeCount(),
		TotalEdges:    graph.EdgeCount(),
	}

	for i, level := range levels {
		dagLevel := output.DAGLevel{
			Level:    i,
			Datasets: make([]output.DAGNode, 0, len(level)),
		}
		for _, name := range level {
			node := output.DAGNode{
				Dataset:   name,
				DependsOn: graph.GetParents(name),
				UsedBy:    graph.GetChildren(name),
			}
			if ds, ok := catalog.Get(name); ok {
				node.Table = ds.Table().String()
			}
			dagLevel.Datasets = append(dagLevel.Datasets, node)
		}
		out.Levels = append(out.Levels, dagLevel)
	}
	return out
}
