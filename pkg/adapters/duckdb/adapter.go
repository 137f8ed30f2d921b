// Package duckdb provides a DuckDB database adapter for LeapMeta.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapmeta/pkg/adapter"
	"github.com/leapstack-labs/leapmeta/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB and applies the configured
// extensions, secrets and settings.
// An empty Database opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.TargetConfig) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	setup, err := setupStatements(params)
	if err != nil {
		return err
	}

	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	// In-memory databases are per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to configure duckdb session: %w", err)
		}
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// DescribeTable retrieves the physical columns of a table.
// Unqualified tables resolve against the target schema, then "main".
func (a *Adapter) DescribeTable(ctx context.Context, table core.TableRef) (*core.TableMetadata, error) {
	schema := a.Cfg.Schema
	if schema == "" {
		schema = "main"
	}
	return a.DescribeTableCommon(ctx, table, schema, adapter.PlaceholderQuestion)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
