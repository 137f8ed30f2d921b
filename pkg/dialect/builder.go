package dialect

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// StatementOverride renders statements whose syntax cannot be expressed by
// Syntax templates. Returning handled=false falls back to the standard form.
type StatementOverride func(d *Standard, s plan.Statement) (sql string, handled bool, err error)

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	d *Standard
}

// New creates a builder from a dialect Config. Empty Syntax templates are
// filled from DefaultSyntax.
func New(cfg Config) *Builder {
	cfg.Syntax = withDefaults(cfg.Syntax)
	if cfg.BoolLiterals == ([2]string{}) {
		cfg.BoolLiterals = [2]string{"TRUE", "FALSE"}
	}

	reserved := make(map[string]struct{}, len(cfg.ReservedWords))
	for _, w := range cfg.ReservedWords {
		reserved[strings.ToLower(w)] = struct{}{}
	}
	typeMap := make(map[string]string, len(cfg.TypeMap))
	for k, v := range cfg.TypeMap {
		typeMap[strings.ToUpper(k)] = v
	}
	cfg.TypeMap = typeMap

	return &Builder{d: &Standard{cfg: cfg, reserved: reserved}}
}

// Hash sets the function wrapping a rendered argument into the backend's
// lowercase hex SHA-256 expression. Without it Hash256 is not supported.
func (b *Builder) Hash(fn func(arg string) string) *Builder {
	b.d.hash = fn
	return b
}

// Quoter replaces the default identifier quoting.
func (b *Builder) Quoter(fn func(name string) string) *Builder {
	b.d.quoter = fn
	return b
}

// Override installs a statement override.
func (b *Builder) Override(fn StatementOverride) *Builder {
	b.d.override = fn
	return b
}

// Engine sets the executor factory.
func (b *Builder) Engine(f EngineFactory) *Builder {
	b.d.engine = f
	return b
}

// Build returns the constructed dialect.
func (b *Builder) Build() *Standard {
	return b.d
}

func withDefaults(s Syntax) Syntax {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.CreateSchema, DefaultSyntax.CreateSchema)
	fill(&s.CreateTableAs, DefaultSyntax.CreateTableAs)
	fill(&s.CreateOrReplaceTableAs, DefaultSyntax.CreateOrReplaceTableAs)
	fill(&s.CreateOrReplaceView, DefaultSyntax.CreateOrReplaceView)
	fill(&s.AlterColumnType, DefaultSyntax.AlterColumnType)
	fill(&s.AddColumn, DefaultSyntax.AddColumn)
	fill(&s.RenameTable, DefaultSyntax.RenameTable)
	fill(&s.RenameColumn, DefaultSyntax.RenameColumn)
	return s
}
