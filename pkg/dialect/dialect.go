// Package dialect provides the SQL rendering contract implemented once per
// target backend, a data-driven Standard renderer the backends build on, and
// the registry backends add themselves to.
//
// Concrete dialects are registered from pkg/dialects/*/ packages. Dialects
// never alter plan structure; they only choose surface syntax.
package dialect

import (
	"errors"
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// ErrDialectRequired is returned when a dialect is required but not provided.
var ErrDialectRequired = errors.New("dialect is required")

// Dialect renders logical plans and expressions into backend SQL.
// Implementations are stateless and safe for concurrent use.
type Dialect interface {
	Name() string
	Capabilities() core.Capabilities

	RenderExpression(e expr.Expr) (string, error)
	RenderSelect(n plan.Node) (string, error)
	RenderIdentifier(name string) string
	RenderTableIdentifier(t core.TableRef) string
	CastExpression(e expr.Expr, targetType string) (string, error)
	RenderStatement(s plan.Statement) (string, error)

	// MapType translates a declared type into the backend's spelling.
	MapType(typ string) string

	// ExecutionEngine returns an unconnected executor for the target.
	ExecutionEngine(cfg core.TargetConfig, logger *slog.Logger) (core.Executor, error)
}

// EngineFactory creates executors for a dialect.
type EngineFactory func(cfg core.TargetConfig, logger *slog.Logger) (core.Executor, error)

// Syntax holds the statement templates that differ between backends.
// Each template is a fmt format string; arguments are noted per field.
type Syntax struct {
	// CreateSchema: schema (may be referenced more than once with %[1]s).
	CreateSchema string
	// CreateTableAs: table, query.
	CreateTableAs string
	// CreateOrReplaceTableAs: table, query.
	CreateOrReplaceTableAs string
	// CreateOrReplaceView: view, query.
	CreateOrReplaceView string
	// AlterColumnType: table, column, type.
	AlterColumnType string
	// AddColumn: table, column, type.
	AddColumn string
	// RenameTable: table, new name (qualified when RenameQualified is set).
	RenameTable string
	// RenameColumn: table, column, new column.
	RenameColumn string
	// RenameQualified makes RenameTable receive a schema-qualified new name.
	RenameQualified bool
	// Terminator is appended to every statement.
	Terminator string
}

// DefaultSyntax is the ANSI-leaning statement syntax.
var DefaultSyntax = Syntax{
	CreateSchema:           "CREATE SCHEMA IF NOT EXISTS %s",
	CreateTableAs:          "CREATE TABLE %s AS\n%s",
	CreateOrReplaceTableAs: "CREATE OR REPLACE TABLE %s AS\n%s",
	CreateOrReplaceView:    "CREATE OR REPLACE VIEW %s AS\n%s",
	AlterColumnType:        "ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s",
	AddColumn:              "ALTER TABLE %s ADD COLUMN %s %s",
	RenameTable:            "ALTER TABLE %s RENAME TO %s",
	RenameColumn:           "ALTER TABLE %s RENAME COLUMN %s TO %s",
}

// Config is the pure-data description of a dialect.
type Config struct {
	Name          string
	Identifiers   core.IdentifierConfig
	DefaultSchema string
	Capabilities  core.Capabilities
	Syntax        Syntax

	// ReservedWords are always quoted when used as identifiers.
	ReservedWords []string

	// TypeMap maps an upper-case base type name to the backend spelling.
	// A value containing %s receives the original parameters ("18,2").
	TypeMap map[string]string

	// BoolLiterals renders true/false. Empty means TRUE/FALSE.
	BoolLiterals [2]string
}
