// Package duckdb provides the DuckDB SQL dialect definition.
// This package is pure Go with no database driver dependencies; executors
// come from the adapter registry (pkg/adapters/duckdb).
package duckdb

import (
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(DuckDB)
}

// Config is the DuckDB dialect configuration.
// DuckDB has no MERGE here; merges fall back to UPDATE ... FROM plus
// INSERT ... WHERE NOT EXISTS.
var Config = dialect.Config{
	Name:          "duckdb",
	DefaultSchema: "main",
	Identifiers: core.IdentifierConfig{
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: core.NormCaseInsensitive,
	},
	Capabilities: core.Capabilities{
		SupportsMerge:           false,
		SupportsDeleteDetection: true,
		SupportsHashExpression:  true,
		SupportsAlterColumnType: true,
		SupportsCreateOrReplace: true,
		SupportsUpdateFrom:      true,
	},
	Syntax: dialect.Syntax{
		AlterColumnType: "ALTER TABLE %s ALTER COLUMN %s TYPE %s",
	},
	ReservedWords: []string{
		"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "asymmetric",
		"both", "case", "cast", "check", "collate", "column", "constraint", "create",
		"default", "deferrable", "desc", "describe", "distinct", "do", "else", "end",
		"except", "false", "fetch", "for", "foreign", "from", "grant", "group",
		"having", "in", "initially", "intersect", "into", "lateral", "leading",
		"limit", "not", "null", "offset", "on", "only", "or", "order", "pivot",
		"placing", "primary", "qualify", "references", "returning", "select",
		"show", "some", "summarize", "symmetric", "table", "then", "to", "trailing",
		"true", "union", "unique", "unpivot", "using", "variadic", "when", "where",
		"window", "with",
	},
	// VARCHAR length is not enforced or reported by DuckDB.
	TypeMap: map[string]string{
		"VARCHAR":  "VARCHAR",
		"CHAR":     "VARCHAR",
		"NVARCHAR": "VARCHAR",
		"STRING":   "VARCHAR",
		"TEXT":     "VARCHAR",
	},
}

// DuckDB is the DuckDB dialect.
var DuckDB = dialect.New(Config).
	Hash(func(arg string) string { return "SHA256(" + arg + ")" }).
	Engine(adapter.Engine("duckdb")).
	Build()
