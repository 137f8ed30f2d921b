package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, and Query implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.TargetConfig
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows and reports the
// affected row count, or -1 when the driver cannot tell.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	res, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*sql.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// DescribeTableCommon provides a shared implementation of DescribeTable over
// information_schema.columns. An empty schema falls back to defaultSchema.
// Returns an error wrapping core.ErrTableNotFound when no columns are found.
func (b *BaseSQLAdapter) DescribeTableCommon(ctx context.Context, table core.TableRef, defaultSchema string, style PlaceholderStyle) (*core.TableMetadata, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema := table.Schema
	if schema == "" {
		schema = defaultSchema
	}

	//nolint:gosec // Placeholders are safe - they come from PlaceholderStyle.Format
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position,
			character_maximum_length,
			numeric_precision,
			numeric_scale
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, style.Format(1), style.Format(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, table.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.PhysicalColumn
	for rows.Next() {
		var col core.PhysicalColumn
		var nullable string
		var length, precision, scale sql.NullInt64
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position, &length, &precision, &scale); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		col.Type = fullType(col.Type, length, precision, scale)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", schema, table.Name, core.ErrTableNotFound)
	}

	return &core.TableMetadata{
		Schema:  schema,
		Name:    table.Name,
		Columns: columns,
	}, nil
}

// fullType appends length or precision to catalogs that report them in
// separate columns (e.g. "character varying" plus 200).
func fullType(dataType string, length, precision, scale sql.NullInt64) string {
	if strings.Contains(dataType, "(") {
		return dataType
	}
	if length.Valid && length.Int64 > 0 {
		return fmt.Sprintf("%s(%d)", dataType, length.Int64)
	}
	switch strings.ToLower(dataType) {
	case "numeric", "decimal", "number":
		if precision.Valid {
			return fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
	}
	return dataType
}
