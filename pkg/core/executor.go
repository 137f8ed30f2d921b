package core

import (
	"context"
	"errors"
)

// ErrTableNotFound is returned by Executor.DescribeTable when the table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Executor runs rendered SQL against a target warehouse.
// Connections are owned exclusively by the executor; callers never share
// an executor across concurrent dataset executions unless it pools internally.
type Executor interface {
	// Connect establishes a connection to the target.
	Connect(ctx context.Context, cfg TargetConfig) error

	// Close closes the connection.
	Close() error

	// Exec executes a statement and returns the affected row count (-1 when unknown).
	Exec(ctx context.Context, sql string) (int64, error)

	// DescribeTable introspects a physical table.
	// Returns ErrTableNotFound when the table does not exist.
	DescribeTable(ctx context.Context, table TableRef) (*TableMetadata, error)
}

// TargetConfig holds warehouse target configuration.
// Values are resolved by an external resolver; the core never parses raw credentials.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, snowflake, databricks, mssql

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// PhysicalColumn is a column as introspected from the warehouse.
type PhysicalColumn struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata holds introspected metadata about a table.
type TableMetadata struct {
	Schema  string
	Name    string
	Columns []PhysicalColumn
}

// Column returns the physical column with the given name (case-insensitive).
func (m *TableMetadata) Column(name string) (*PhysicalColumn, bool) {
	for i := range m.Columns {
		if equalFold(m.Columns[i].Name, name) {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

// Schemas maps table references to their introspected metadata.
// A missing entry means the table does not exist physically.
type Schemas map[TableRef]*TableMetadata

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
