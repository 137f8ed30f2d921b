// Package ansi provides the reference ANSI SQL dialect.
//
// It renders plain standard SQL and declares no merge, delete detection or
// hash capability, which makes it the dialect capability errors are
// exercised against. It has no execution engine.
package ansi

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
)

func init() {
	dialect.Register(ANSI)
}

// Config is the ANSI dialect configuration.
var Config = dialect.Config{
	Name: "ansi",
	Identifiers: core.IdentifierConfig{
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: core.NormUppercase,
	},
	Capabilities: core.Capabilities{
		SupportsAlterColumnType: true,
	},
	ReservedWords: []string{
		"all", "and", "as", "between", "by", "case", "cast", "create", "cross",
		"delete", "distinct", "drop", "else", "end", "exists", "false", "from",
		"full", "group", "having", "in", "inner", "insert", "into", "is", "join",
		"left", "like", "merge", "not", "null", "on", "or", "order", "outer",
		"right", "select", "set", "table", "then", "true", "union", "update",
		"user", "using", "values", "when", "where", "with",
	},
}

// ANSI is the reference dialect.
var ANSI = dialect.New(Config).Build()
