// Package main provides the CLI for the LeapMeta metadata-driven SQL engine.
package main

import (
	"os"

	"github.com/leapstack-labs/leapmeta/internal/cli"

	// Register adapters and, through them, their dialects.
	_ "github.com/leapstack-labs/leapmeta/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapmeta/pkg/adapters/postgres"

	// Render-only dialects.
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/ansi"
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/databricks"
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/mssql"
	_ "github.com/leapstack-labs/leapmeta/pkg/dialects/snowflake"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
