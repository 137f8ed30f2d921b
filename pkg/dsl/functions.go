package dsl

import (
	"fmt"

	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

type arity struct {
	min, max int // max < 0 means variadic
}

var functions = map[string]arity{
	"HASH256":   {1, 1},
	"CONCAT":    {1, -1},
	"CONCAT_WS": {2, -1},
	"COALESCE":  {1, -1},
	"COL":       {1, 2},
	"CAST":      {1, 1},
}

func buildCall(name string, args []expr.Expr, fail func(string) error) (expr.Expr, error) {
	a := functions[name]
	if len(args) < a.min || (a.max >= 0 && len(args) > a.max) {
		return nil, fail(arityMessage(name, a, len(args)))
	}

	switch name {
	case "HASH256":
		return &expr.Hash256{Arg: args[0]}, nil
	case "CONCAT":
		return &expr.Concat{Args: args}, nil
	case "CONCAT_WS":
		return &expr.ConcatWs{Separator: args[0], Args: args[1:]}, nil
	case "COALESCE":
		return &expr.Coalesce{Args: args}, nil
	case "COL":
		names := make([]string, len(args))
		for i, arg := range args {
			s, ok := nameOf(arg)
			if !ok {
				return nil, fail("COL arguments must be names or string literals")
			}
			names[i] = s
		}
		if len(names) == 2 {
			return expr.QCol(names[0], names[1]), nil
		}
		return expr.Col(names[0]), nil
	}
	return nil, fail(fmt.Sprintf("unknown function %s", name))
}

func nameOf(e expr.Expr) (string, bool) {
	switch n := e.(type) {
	case *expr.Literal:
		if n.Kind == expr.LiteralString && n.Value != "" {
			return n.Value, true
		}
	case *expr.ColumnRef:
		if n.Table == "" {
			return n.Column, true
		}
	}
	return "", false
}

func arityMessage(name string, a arity, got int) string {
	switch {
	case a.max == a.min:
		return fmt.Sprintf("%s expects %d argument(s), got %d", name, a.min, got)
	case a.max < 0:
		return fmt.Sprintf("%s expects at least %d argument(s), got %d", name, a.min, got)
	default:
		return fmt.Sprintf("%s expects %d to %d arguments, got %d", name, a.min, a.max, got)
	}
}
