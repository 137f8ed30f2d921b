// Package plan holds the dialect-agnostic logical query trees and the
// statement nodes rendered by dialects, plus the builder that assembles them
// from dataset lineage.
package plan

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

// Node is a query: a *Select or a *Union.
type Node interface {
	queryNode()
}

// Source is a FROM item: a *TableSource or a *SubquerySource.
type Source interface {
	sourceNode()
}

// SelectItem is one projected expression.
type SelectItem struct {
	Expr  expr.Expr
	Alias string
}

// Name returns the output name of the item.
func (i SelectItem) Name() string {
	if i.Alias != "" {
		return i.Alias
	}
	if c, ok := i.Expr.(*expr.ColumnRef); ok {
		return c.Column
	}
	return ""
}

// Select is a single SELECT block.
type Select struct {
	Items   []SelectItem
	From    Source
	Where   expr.Expr
	GroupBy []expr.Expr
	OrderBy []expr.OrderItem
}

// Union combines selects. All selects project the same names in the same order.
type Union struct {
	Selects []*Select
	All     bool
}

// TableSource reads a physical table.
type TableSource struct {
	Table core.TableRef
	Alias string
}

// SubquerySource wraps a query with an alias.
type SubquerySource struct {
	Query Node
	Alias string
}

func (*Select) queryNode() {}
func (*Union) queryNode()  {}

func (*TableSource) sourceNode()    {}
func (*SubquerySource) sourceNode() {}

// OutputNames returns the column names a query projects.
func OutputNames(n Node) []string {
	switch q := n.(type) {
	case *Select:
		names := make([]string, len(q.Items))
		for i, it := range q.Items {
			names[i] = it.Name()
		}
		return names
	case *Union:
		if len(q.Selects) == 0 {
			return nil
		}
		return OutputNames(q.Selects[0])
	}
	return nil
}
