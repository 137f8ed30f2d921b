// Package hashing builds the deterministic hash trees used for surrogate keys,
// foreign keys and row-change detection.
//
// Every key is built the same way:
//
//	HASH256(CONCAT_WS('|', CONCAT('<name>', '~', COALESCE(CAST(<ref> AS STRING), 'null_replaced')), ..., '<pepper>'))
//
// with pairs sorted by name. Every value is cast to text before it is
// coalesced, so backends with strict COALESCE typing accept numeric and
// temporal columns and all of them hash the same text.
package hashing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

// Fixed construction constants.
const (
	PairSeparator   = "~"
	Separator       = "|"
	NullReplacement = "null_replaced"

	// TextType is the logical type every hashed value is cast to. Dialects
	// map it to their unbounded string type.
	TextType = "STRING"
)

// Pair returns CONCAT('<name>', '~', COALESCE(CAST(ref AS STRING), 'null_replaced')).
func Pair(name string, ref expr.Expr) expr.Expr {
	return &expr.Concat{Args: []expr.Expr{
		expr.Str(name),
		expr.Str(PairSeparator),
		&expr.Coalesce{Args: []expr.Expr{
			&expr.Cast{Expr: ref, Type: TextType},
			expr.Str(NullReplacement),
		}},
	}}
}

// binding pairs the literal key name with the column that supplies its value.
type binding struct {
	name string
	ref  expr.Expr
}

func build(bindings []binding, pepper *string) expr.Expr {
	sort.SliceStable(bindings, func(i, j int) bool {
		return bindings[i].name < bindings[j].name
	})

	args := make([]expr.Expr, 0, len(bindings)+1)
	for _, b := range bindings {
		args = append(args, Pair(b.name, b.ref))
	}
	if pepper != nil {
		args = append(args, expr.Str(*pepper))
	}
	if len(args) == 0 {
		args = append(args, expr.Str(""))
	}
	return &expr.Hash256{Arg: &expr.ConcatWs{Separator: expr.Str(Separator), Args: args}}
}

// SurrogateKey builds the SK tree over the given business keys.
func SurrogateKey(dataset string, businessKeys []string, pepper string) (expr.Expr, error) {
	if len(businessKeys) == 0 {
		return nil, &core.LineageIncompleteError{Dataset: dataset, Reason: "no business key declared"}
	}
	bindings := make([]binding, 0, len(businessKeys))
	seen := make(map[string]bool, len(businessKeys))
	for _, bk := range businessKeys {
		key := strings.ToLower(bk)
		if seen[key] {
			return nil, &core.LineageIncompleteError{Dataset: dataset, Column: bk, Reason: "business key listed twice"}
		}
		seen[key] = true
		bindings = append(bindings, binding{name: bk, ref: expr.Col(bk)})
	}
	return build(bindings, &pepper), nil
}

// ForeignKey builds an FK tree that mirrors the parent's SK tree: the same
// sorted literal names and separators, with each parent column reference
// replaced by the child column mapped to it.
func ForeignKey(child string, column string, parent *core.Dataset, columnMap map[string]string, pepper string) (expr.Expr, error) {
	if parent == nil || len(parent.BusinessKeys) == 0 {
		name := ""
		if parent != nil {
			name = parent.Name
		}
		return nil, &core.LineageIncompleteError{
			Dataset: child,
			Column:  column,
			Reason:  fmt.Sprintf("foreign key parent %q has no business key", name),
		}
	}

	bindings := make([]binding, 0, len(parent.BusinessKeys))
	for _, bk := range parent.BusinessKeys {
		childCol := lookupFold(columnMap, bk)
		if childCol == "" {
			return nil, &core.LineageIncompleteError{
				Dataset: child,
				Column:  column,
				Reason:  fmt.Sprintf("no child column mapped to %s business key %q", parent.Name, bk),
			}
		}
		bindings = append(bindings, binding{name: bk, ref: expr.Col(childCol)})
	}
	return build(bindings, &pepper), nil
}

// RowHash builds the change-detection hash over the given attribute columns.
// It carries no pepper.
func RowHash(attributes []string) expr.Expr {
	bindings := make([]binding, 0, len(attributes))
	for _, a := range attributes {
		bindings = append(bindings, binding{name: a, ref: expr.Col(a)})
	}
	return build(bindings, nil)
}

// RowHashAttributes returns the columns of d that feed its row hash: every
// non-key, non-technical column that is not a business key.
func RowHashAttributes(d *core.Dataset) []string {
	var out []string
	for _, c := range d.Columns {
		if c.IsKey() || c.Role == core.RoleTechnical || d.IsBusinessKey(c.Name) {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// Compute evaluates a hash tree against an in-memory row and returns the hex
// digest. It is the Go reference for what every dialect must produce.
func Compute(e expr.Expr, row expr.Row) (string, error) {
	v, err := expr.Eval(e, row)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("hash evaluated to NULL")
	}
	return *v, nil
}

func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
