// Package adapter provides the database adapter contract and the shared
// database/sql plumbing concrete adapters embed.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Adapter is an Executor backed by a database/sql connection.
type Adapter interface {
	core.Executor

	// Query executes a SQL statement that returns rows.
	// The caller closes the rows and checks rows.Err().
	Query(ctx context.Context, sql string) (*sql.Rows, error)

	// IsConnected reports whether Connect succeeded and Close was not called.
	IsConnected() bool

	// DialectName returns the dialect this adapter executes.
	DialectName() string
}

// PlaceholderStyle is the bind-parameter syntax of a driver.
type PlaceholderStyle int

// Placeholder styles.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1, $2
)

// Format returns the placeholder for the n-th (1-based) parameter.
func (p PlaceholderStyle) Format(n int) string {
	if p == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
