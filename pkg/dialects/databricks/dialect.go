// Package databricks provides the Databricks SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package databricks

import (
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(Databricks)
}

// Config is the Databricks SQL dialect configuration.
// Delta tables cannot change a column type in place, so widening drift is
// applied by rebuild-and-swap.
var Config = dialect.Config{
	Name:          "databricks",
	DefaultSchema: "default",
	Identifiers: core.IdentifierConfig{
		Quote:         "`",
		QuoteEnd:      "`",
		Escape:        "``",
		Normalization: core.NormCaseInsensitive,
	},
	Capabilities: core.Capabilities{
		SupportsMerge:           true,
		SupportsDeleteDetection: true,
		SupportsHashExpression:  true,
		SupportsAlterColumnType: false,
		SupportsCreateOrReplace: true,
		SupportsUpdateFrom:      false,
	},
	Syntax: dialect.Syntax{
		AddColumn:       "ALTER TABLE %s ADD COLUMNS (%s %s)",
		RenameQualified: true,
	},
	ReservedWords: []string{
		"all", "alter", "and", "anti", "any", "as", "authorization", "between",
		"both", "by", "case", "cast", "check", "collate", "column", "constraint",
		"create", "cross", "cube", "current", "delete", "describe", "distinct",
		"drop", "else", "end", "except", "exists", "false", "fetch", "for",
		"foreign", "from", "full", "grant", "group", "having", "in", "inner",
		"insert", "intersect", "interval", "into", "is", "join", "lateral",
		"leading", "left", "like", "minus", "natural", "not", "null", "of", "on",
		"or", "order", "outer", "primary", "qualify", "references", "right",
		"rollup", "select", "semi", "set", "some", "table", "then", "to",
		"trailing", "true", "union", "unique", "update", "user", "using", "values",
		"when", "where", "window", "with",
	},
	TypeMap: map[string]string{
		"VARCHAR":  "STRING",
		"NVARCHAR": "STRING",
		"TEXT":     "STRING",
		"DATETIME": "TIMESTAMP",
	},
}

// Databricks is the Databricks dialect.
var Databricks = dialect.New(Config).
	Hash(func(arg string) string { return "sha2(" + arg + ", 256)" }).
	Engine(adapter.Engine("databricks")).
	Build()
