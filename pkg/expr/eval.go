package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Row maps column names to textual values. A nil pointer is SQL NULL.
type Row map[string]*string

// Value returns a non-null cell value.
func Value(s string) *string { return &s }

// Eval evaluates e against a row using the textual semantics shared by
// every supported dialect. Any NULL argument of CONCAT or CONCAT_WS makes the
// result NULL, which matches the strictest dialect; hash inputs are built so
// that no NULL ever reaches those functions.
//
// Qualified references are looked up as "table.column" first, then by column.
func Eval(e Expr, row Row) (*string, error) {
	switch n := e.(type) {
	case *Literal:
		if n.Kind == LiteralNull {
			return nil, nil
		}
		return Value(n.Value), nil
	case *ColumnRef:
		if n.Table != "" {
			if v, ok := row[n.Table+"."+n.Column]; ok {
				return v, nil
			}
		}
		v, ok := row[n.Column]
		if !ok {
			return nil, fmt.Errorf("column %q not present in row", n.Column)
		}
		return v, nil
	case *ExprRef:
		return nil, fmt.Errorf("unresolved expression reference {expr:%s}", n.Name)
	case *Concat:
		vals, null, err := evalAll(n.Args, row)
		if err != nil || null {
			return nil, err
		}
		return Value(strings.Join(vals, "")), nil
	case *ConcatWs:
		sep, err := Eval(n.Separator, row)
		if err != nil || sep == nil {
			return nil, err
		}
		vals, null, err := evalAll(n.Args, row)
		if err != nil || null {
			return nil, err
		}
		return Value(strings.Join(vals, *sep)), nil
	case *Coalesce:
		for _, a := range n.Args {
			v, err := Eval(a, row)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	case *Hash256:
		v, err := Eval(n.Arg, row)
		if err != nil || v == nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(*v))
		return Value(hex.EncodeToString(sum[:])), nil
	case *Cast:
		return Eval(n.Expr, row)
	case *Binary:
		l, err := Eval(n.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, row)
		if err != nil {
			return nil, err
		}
		return evalBinary(n.Op, l, r)
	case *WindowFunction:
		return nil, fmt.Errorf("window function %s cannot be evaluated on a single row", n.Name)
	}
	return nil, fmt.Errorf("unknown expression node %T", e)
}

func evalAll(args []Expr, row Row) ([]string, bool, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		v, err := Eval(a, row)
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			return nil, true, nil
		}
		out = append(out, *v)
	}
	return out, false, nil
}

func evalBinary(op BinaryOp, l, r *string) (*string, error) {
	switch op {
	case OpEq, OpNotEq:
		if l == nil || r == nil {
			return nil, nil
		}
		eq := *l == *r
		if op == OpNotEq {
			eq = !eq
		}
		return boolValue(eq), nil
	case OpAnd:
		if isFalse(l) || isFalse(r) {
			return boolValue(false), nil
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return boolValue(true), nil
	case OpOr:
		if isTrue(l) || isTrue(r) {
			return boolValue(true), nil
		}
		if l == nil || r == nil {
			return nil, nil
		}
		return boolValue(false), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func boolValue(b bool) *string {
	if b {
		return Value("true")
	}
	return Value("false")
}

func isTrue(v *string) bool  { return v != nil && *v == "true" }
func isFalse(v *string) bool { return v != nil && *v == "false" }
