package commands

import (
	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/spf13/cobra"
)

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List the registered SQL dialects",
		Long: `List every registered dialect with its capabilities.

Every dialect renders SQL; only dialects with an executor can run with
--execute. Capabilities decide which statements a dialect emits: without
merge support an incremental load renders as update plus insert.`,
		Example: `  leapmeta dialects
  leapmeta dialects --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDialects(cmd)
		},
	}
}

func runDialects(cmd *cobra.Command) error {
	r := NewCommandContextWithoutEngine(cmd).Renderer
	out := dialectsOutput()

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Dialects")
	rows := make([][]string, 0, len(out))
	for _, d := range out {
		rows = append(rows, []string{
			d.Name,
			d.DefaultSchema,
			yesNo(d.Executor),
			yesNo(d.SupportsMerge),
			yesNo(d.SupportsDeleteDetection),
			yesNo(d.SupportsHashExpression),
			yesNo(d.SupportsAlterColumnType),
		})
	}
	r.Table([]string{"Dialect", "Default Schema", "Executor", "Merge", "Delete Detection", "Hash", "Alter Type"}, rows)
	return nil
}

func dialectsOutput() []output.DialectOutput {
	names := dialect.List()
	out := make([]output.DialectOutput, 0, len(names))
	for _, name := range names {
		d, ok := dialect.Get(name)
		if !ok {
			continue
		}
		caps := d.Capabilities()
		entry := output.DialectOutput{
			Name:                    name,
			Executor:                adapter.IsRegistered(name),
			SupportsMerge:           caps.SupportsMerge,
			SupportsDeleteDetection: caps.SupportsDeleteDetection,
			SupportsHashExpression:  caps.SupportsHashExpression,
			SupportsAlterColumnType: caps.SupportsAlterColumnType,
		}
		if c, ok := d.(interface{ Config() dialect.Config }); ok {
			entry.DefaultSchema = c.Config().DefaultSchema
		}
		out = append(out, entry)
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
