// Package postgres provides the PostgreSQL SQL dialect definition.
// This package is pure Go with no database driver dependencies; executors
// come from the adapter registry (pkg/adapters/postgres).
package postgres

import (
	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/lib/pq"
)

func init() {
	dialect.Register(Postgres)
}

// postgresReservedWords contains common PostgreSQL reserved words.
// This is a manually maintained list of frequently problematic identifiers.
// For a complete list, use pg_get_keywords() at runtime.
var postgresReservedWords = []string{
	"user", "order", "group", "table", "select", "from", "where", "index",
	"all", "and", "any", "array", "as", "asc", "asymmetric", "authorization",
	"between", "binary", "both", "case", "cast", "check", "collate", "column",
	"constraint", "create", "cross", "current_catalog", "current_date",
	"current_role", "current_schema", "current_time", "current_timestamp",
	"current_user", "default", "deferrable", "desc", "distinct", "do", "else",
	"end", "except", "false", "fetch", "for", "foreign", "freeze", "full",
	"grant", "having", "ilike", "in", "initially", "inner", "intersect",
	"into", "is", "isnull", "join", "lateral", "leading", "left", "like",
	"limit", "localtime", "localtimestamp", "natural", "not", "notnull",
	"null", "offset", "on", "only", "or", "outer", "overlaps", "placing",
	"primary", "references", "returning", "right", "session_user", "similar",
	"some", "symmetric", "then", "to", "trailing", "true", "union", "unique",
	"using", "variadic", "verbose", "when", "window", "with",
}

// Config is the PostgreSQL dialect configuration. MERGE requires
// PostgreSQL 15; DIGEST requires the pgcrypto extension.
var Config = dialect.Config{
	Name:          "postgres",
	DefaultSchema: "public",
	Identifiers: core.IdentifierConfig{
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: core.NormLowercase,
	},
	Capabilities: core.Capabilities{
		SupportsMerge:           true,
		SupportsDeleteDetection: true,
		SupportsHashExpression:  true,
		SupportsAlterColumnType: true,
		SupportsCreateOrReplace: false,
		SupportsUpdateFrom:      true,
	},
	Syntax: dialect.Syntax{
		AlterColumnType: "ALTER TABLE %s ALTER COLUMN %s TYPE %s",
	},
	ReservedWords: postgresReservedWords,
	TypeMap: map[string]string{
		"DOUBLE":   "DOUBLE PRECISION",
		"STRING":   "TEXT",
		"DATETIME": "TIMESTAMP",
	},
}

// Postgres is the PostgreSQL dialect.
var Postgres = dialect.New(Config).
	Hash(func(arg string) string { return "ENCODE(DIGEST(" + arg + ", 'sha256'), 'hex')" }).
	Quoter(pq.QuoteIdentifier).
	Engine(adapter.Engine("postgres")).
	Build()
