// Package snowflake provides the Snowflake SQL dialect definition.
// This package is pure Go with no database driver dependencies.
package snowflake

import (
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(Snowflake)
}

// Config is the Snowflake SQL dialect configuration.
var Config = dialect.Config{
	Name:          "snowflake",
	DefaultSchema: "PUBLIC",
	Identifiers: core.IdentifierConfig{
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: core.NormUppercase, // Snowflake normalizes to uppercase
	},
	Capabilities: core.Capabilities{
		SupportsMerge:           true,
		SupportsDeleteDetection: true,
		SupportsHashExpression:  true,
		SupportsAlterColumnType: true,
		SupportsCreateOrReplace: true,
		SupportsUpdateFrom:      true,
	},
	Syntax: dialect.Syntax{
		// unqualified new names move the table to the current schema
		RenameQualified: true,
	},
	ReservedWords: []string{
		"account", "all", "alter", "and", "any", "as", "between", "by", "case",
		"cast", "check", "column", "connect", "connection", "constraint", "create",
		"cross", "current", "current_date", "current_time", "current_timestamp",
		"current_user", "database", "delete", "distinct", "drop", "else", "exists",
		"false", "following", "for", "from", "full", "grant", "group", "gscluster",
		"having", "ilike", "in", "increment", "inner", "insert", "intersect", "into",
		"is", "issue", "join", "lateral", "left", "like", "localtime",
		"localtimestamp", "minus", "natural", "not", "null", "of", "on", "or",
		"order", "organization", "qualify", "regexp", "revoke", "right", "rlike",
		"row", "rows", "sample", "schema", "select", "set", "some", "start",
		"table", "tablesample", "then", "to", "trigger", "true", "try_cast",
		"union", "unique", "update", "using", "values", "view", "when", "whenever",
		"where", "with",
	},
	TypeMap: map[string]string{
		"TEXT":   "VARCHAR",
		"STRING": "VARCHAR",
	},
}

// Snowflake is the Snowflake dialect. No adapter ships for it, so
// ExecutionEngine fails with an unknown adapter error unless one is registered.
var Snowflake = dialect.New(Config).
	Hash(func(arg string) string { return "SHA2(" + arg + ", 256)" }).
	Engine(adapter.Engine("snowflake")).
	Build()
