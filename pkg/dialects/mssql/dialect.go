// Package mssql provides the SQL Server dialect definition.
// This package is pure Go with no database driver dependencies.
package mssql

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

func init() {
	dialect.Register(MSSQL)
}

// Config is the SQL Server dialect configuration.
var Config = dialect.Config{
	Name:          "mssql",
	DefaultSchema: "dbo",
	Identifiers: core.IdentifierConfig{
		Quote:         "[",
		QuoteEnd:      "]",
		Escape:        "]]",
		Normalization: core.NormCaseInsensitive,
	},
	Capabilities: core.Capabilities{
		SupportsMerge:           true,
		SupportsDeleteDetection: true,
		SupportsHashExpression:  true,
		SupportsAlterColumnType: true,
		SupportsCreateOrReplace: false,
		SupportsUpdateFrom:      false,
	},
	Syntax: dialect.Syntax{
		CreateTableAs:   "SELECT * INTO %s FROM (\n%s\n) AS q",
		AlterColumnType: "ALTER TABLE %s ALTER COLUMN %s %s",
		AddColumn:       "ALTER TABLE %s ADD %s %s",
		Terminator:      ";",
	},
	ReservedWords: []string{
		"add", "all", "alter", "and", "any", "as", "asc", "authorization", "backup",
		"begin", "between", "break", "browse", "bulk", "by", "cascade", "case",
		"check", "checkpoint", "close", "clustered", "coalesce", "collate", "column",
		"commit", "compute", "constraint", "contains", "continue", "convert",
		"create", "cross", "current", "cursor", "database", "dbcc", "deallocate",
		"declare", "default", "delete", "deny", "desc", "disk", "distinct",
		"distributed", "double", "drop", "dump", "else", "end", "errlvl", "escape",
		"except", "exec", "execute", "exists", "exit", "external", "fetch", "file",
		"fillfactor", "for", "foreign", "freetext", "from", "full", "function",
		"goto", "grant", "group", "having", "holdlock", "identity", "if", "in",
		"index", "inner", "insert", "intersect", "into", "is", "join", "key",
		"kill", "left", "like", "lineno", "merge", "national", "nocheck",
		"nonclustered", "not", "null", "nullif", "of", "off", "offsets", "on",
		"open", "option", "or", "order", "outer", "over", "percent", "pivot",
		"plan", "precision", "primary", "print", "proc", "procedure", "public",
		"raiserror", "read", "references", "restore", "restrict", "return",
		"revert", "revoke", "right", "rollback", "rowcount", "rule", "save",
		"schema", "select", "session_user", "set", "setuser", "shutdown", "some",
		"statistics", "system_user", "table", "tablesample", "then", "to", "top",
		"tran", "transaction", "trigger", "truncate", "union", "unique", "unpivot",
		"update", "use", "user", "values", "varying", "view", "waitfor", "when",
		"where", "while", "with",
	},
	TypeMap: map[string]string{
		"TIMESTAMP": "DATETIME2",
		"BOOLEAN":   "BIT",
		"DOUBLE":    "FLOAT",
		"STRING":    "NVARCHAR(MAX)",
		"TEXT":      "NVARCHAR(MAX)",
	},
	BoolLiterals: [2]string{"1", "0"},
}

// MSSQL is the SQL Server dialect. No adapter ships for it, so
// ExecutionEngine fails with an unknown adapter error unless one is registered.
var MSSQL = dialect.New(Config).
	Hash(hashExpression).
	Override(renderOverride).
	Engine(adapter.Engine("mssql")).
	Build()

// hashCollation makes the NVARCHAR to VARCHAR conversion emit UTF-8
// (SQL Server 2019 and later).
const hashCollation = "Latin1_General_100_BIN2_UTF8"

// hashExpression hashes the UTF-8 bytes of arg rather than the UTF-16 bytes
// of NVARCHAR, and converts the digest to lowercase hex.
func hashExpression(arg string) string {
	utf8 := "CAST(" + arg + " COLLATE " + hashCollation + " AS VARCHAR(MAX))"
	return "LOWER(CONVERT(VARCHAR(64), HASHBYTES('SHA2_256', " + utf8 + "), 2))"
}

// renderOverride renders renames through sp_rename, which takes names as
// strings, and guards CREATE SCHEMA with SCHEMA_ID.
func renderOverride(d *dialect.Standard, s plan.Statement) (string, bool, error) {
	switch st := s.(type) {
	case *plan.CreateSchema:
		return "IF SCHEMA_ID(" + quoteString(st.Schema) + ") IS NULL EXEC(" +
			quoteString("CREATE SCHEMA "+d.RenderIdentifier(st.Schema)) + ")", true, nil
	case *plan.RenameTable:
		return "EXEC sp_rename " + quoteString(d.RenderTableIdentifier(st.Table)) + ", " + quoteString(st.NewName), true, nil
	case *plan.RenameColumn:
		target := d.RenderTableIdentifier(st.Table) + "." + d.RenderIdentifier(st.Column)
		return "EXEC sp_rename " + quoteString(target) + ", " + quoteString(st.NewName) + ", 'COLUMN'", true, nil
	}
	return "", false, nil
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
