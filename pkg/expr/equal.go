package expr

// Equal reports whether two trees are structurally identical.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Literal:
		y, ok := b.(*Literal)
		return ok && x.Kind == y.Kind && x.Value == y.Value
	case *ColumnRef:
		y, ok := b.(*ColumnRef)
		return ok && x.Table == y.Table && x.Column == y.Column
	case *ExprRef:
		y, ok := b.(*ExprRef)
		return ok && x.Name == y.Name
	case *Concat:
		y, ok := b.(*Concat)
		return ok && equalAll(x.Args, y.Args)
	case *ConcatWs:
		y, ok := b.(*ConcatWs)
		return ok && Equal(x.Separator, y.Separator) && equalAll(x.Args, y.Args)
	case *Coalesce:
		y, ok := b.(*Coalesce)
		return ok && equalAll(x.Args, y.Args)
	case *Hash256:
		y, ok := b.(*Hash256)
		return ok && Equal(x.Arg, y.Arg)
	case *WindowFunction:
		y, ok := b.(*WindowFunction)
		if !ok || x.Name != y.Name || len(x.OrderBy) != len(y.OrderBy) {
			return false
		}
		for i := range x.OrderBy {
			if x.OrderBy[i].Desc != y.OrderBy[i].Desc || !Equal(x.OrderBy[i].Expr, y.OrderBy[i].Expr) {
				return false
			}
		}
		return equalAll(x.Args, y.Args) && equalAll(x.PartitionBy, y.PartitionBy)
	case *Cast:
		y, ok := b.(*Cast)
		return ok && x.Type == y.Type && Equal(x.Expr, y.Expr)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	}
	return false
}

func equalAll(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
