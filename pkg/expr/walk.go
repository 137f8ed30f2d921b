package expr

import "fmt"

// Children returns the direct children of a node in evaluation order.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *Concat:
		return n.Args
	case *ConcatWs:
		return append([]Expr{n.Separator}, n.Args...)
	case *Coalesce:
		return n.Args
	case *Hash256:
		return []Expr{n.Arg}
	case *WindowFunction:
		out := make([]Expr, 0, len(n.Args)+len(n.PartitionBy)+len(n.OrderBy))
		out = append(out, n.Args...)
		out = append(out, n.PartitionBy...)
		for _, o := range n.OrderBy {
			out = append(out, o.Expr)
		}
		return out
	case *Cast:
		return []Expr{n.Expr}
	case *Binary:
		return []Expr{n.Left, n.Right}
	default:
		return nil
	}
}

// Walk visits e depth-first. Returning false from fn skips the node's children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Rewrite returns a copy of e where every node is passed bottom-up through fn.
// fn receives an already-copied node and may return a replacement.
func Rewrite(e Expr, fn func(Expr) (Expr, error)) (Expr, error) {
	if e == nil {
		return nil, nil
	}

	rewriteAll := func(in []Expr) ([]Expr, error) {
		out := make([]Expr, len(in))
		for i, a := range in {
			r, err := Rewrite(a, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}

	var copied Expr
	switch n := e.(type) {
	case *Literal:
		c := *n
		copied = &c
	case *ColumnRef:
		c := *n
		copied = &c
	case *ExprRef:
		c := *n
		copied = &c
	case *Concat:
		args, err := rewriteAll(n.Args)
		if err != nil {
			return nil, err
		}
		copied = &Concat{Args: args}
	case *ConcatWs:
		sep, err := Rewrite(n.Separator, fn)
		if err != nil {
			return nil, err
		}
		args, err := rewriteAll(n.Args)
		if err != nil {
			return nil, err
		}
		copied = &ConcatWs{Separator: sep, Args: args}
	case *Coalesce:
		args, err := rewriteAll(n.Args)
		if err != nil {
			return nil, err
		}
		copied = &Coalesce{Args: args}
	case *Hash256:
		arg, err := Rewrite(n.Arg, fn)
		if err != nil {
			return nil, err
		}
		copied = &Hash256{Arg: arg}
	case *WindowFunction:
		args, err := rewriteAll(n.Args)
		if err != nil {
			return nil, err
		}
		parts, err := rewriteAll(n.PartitionBy)
		if err != nil {
			return nil, err
		}
		order := make([]OrderItem, len(n.OrderBy))
		for i, o := range n.OrderBy {
			r, err := Rewrite(o.Expr, fn)
			if err != nil {
				return nil, err
			}
			order[i] = OrderItem{Expr: r, Desc: o.Desc}
		}
		copied = &WindowFunction{Name: n.Name, Args: args, PartitionBy: parts, OrderBy: order}
	case *Cast:
		inner, err := Rewrite(n.Expr, fn)
		if err != nil {
			return nil, err
		}
		copied = &Cast{Expr: inner, Type: n.Type}
	case *Binary:
		l, err := Rewrite(n.Left, fn)
		if err != nil {
			return nil, err
		}
		r, err := Rewrite(n.Right, fn)
		if err != nil {
			return nil, err
		}
		copied = &Binary{Op: n.Op, Left: l, Right: r}
	default:
		return nil, fmt.Errorf("unknown expression node %T", e)
	}
	return fn(copied)
}

// Clone returns a deep copy of e.
func Clone(e Expr) Expr {
	out, _ := Rewrite(e, func(n Expr) (Expr, error) { return n, nil })
	return out
}

// ColumnRefs returns all column references of e in depth-first order.
func ColumnRefs(e Expr) []*ColumnRef {
	var refs []*ColumnRef
	Walk(e, func(n Expr) bool {
		if c, ok := n.(*ColumnRef); ok {
			refs = append(refs, c)
		}
		return true
	})
	return refs
}

// Resolve replaces every ExprRef with the expression returned by lookup.
// Unknown names fail the whole resolution; the input tree is never modified.
func Resolve(e Expr, lookup func(name string) (Expr, bool)) (Expr, error) {
	return Rewrite(e, func(n Expr) (Expr, error) {
		ref, ok := n.(*ExprRef)
		if !ok {
			return n, nil
		}
		target, found := lookup(ref.Name)
		if !found {
			return nil, fmt.Errorf("unresolved expression reference {expr:%s}", ref.Name)
		}
		return Clone(target), nil
	})
}

// MapColumns replaces column references using fn. Returning nil keeps the reference.
func MapColumns(e Expr, fn func(*ColumnRef) Expr) (Expr, error) {
	return Rewrite(e, func(n Expr) (Expr, error) {
		c, ok := n.(*ColumnRef)
		if !ok {
			return n, nil
		}
		if r := fn(c); r != nil {
			return r, nil
		}
		return c, nil
	})
}
