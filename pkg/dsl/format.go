package dsl

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

// Format renders a tree as canonical DSL text. Parse(Format(e)) is
// structurally equal to e for every node the DSL can express; window
// functions and binary operators have no DSL form and return an error.
func Format(e expr.Expr) (string, error) {
	var b strings.Builder
	if err := format(&b, e); err != nil {
		return "", err
	}
	return b.String(), nil
}

func format(b *strings.Builder, e expr.Expr) error {
	switch n := e.(type) {
	case *expr.Literal:
		switch n.Kind {
		case expr.LiteralString:
			b.WriteString(quote(n.Value))
		case expr.LiteralNull:
			b.WriteString("NULL")
		case expr.LiteralBool:
			b.WriteString(strings.ToUpper(n.Value))
		default:
			b.WriteString(n.Value)
		}
	case *expr.ColumnRef:
		b.WriteString("COL(")
		if n.Table != "" {
			b.WriteString(quote(n.Table))
			b.WriteString(", ")
		}
		b.WriteString(quote(n.Column))
		b.WriteString(")")
	case *expr.ExprRef:
		fmt.Fprintf(b, "{expr:%s}", n.Name)
	case *expr.Concat:
		return formatCall(b, "CONCAT", n.Args)
	case *expr.ConcatWs:
		return formatCall(b, "CONCAT_WS", append([]expr.Expr{n.Separator}, n.Args...))
	case *expr.Coalesce:
		return formatCall(b, "COALESCE", n.Args)
	case *expr.Hash256:
		return formatCall(b, "HASH256", []expr.Expr{n.Arg})
	case *expr.Cast:
		b.WriteString("CAST(")
		if err := format(b, n.Expr); err != nil {
			return err
		}
		b.WriteString(" AS ")
		b.WriteString(n.Type)
		b.WriteString(")")
	default:
		return fmt.Errorf("%T has no DSL representation", e)
	}
	return nil
}

func formatCall(b *strings.Builder, name string, args []expr.Expr) error {
	b.WriteString(name)
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := format(b, a); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
