// Package expr defines the vendor-neutral expression tree shared by the DSL
// parser, the hashing planner, the logical plan builder and every dialect.
//
// Trees are immutable once built. Helpers that transform a tree (Rewrite,
// Resolve, Qualify) always return a fresh copy and never touch their input.
package expr

// Expr is a node of the expression tree.
type Expr interface {
	exprNode()
}

// LiteralKind is the type of a literal value.
type LiteralKind int

// LiteralKind constants.
const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// String returns the kind name.
func (k LiteralKind) String() string {
	switch k {
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralBool:
		return "bool"
	case LiteralNull:
		return "null"
	default:
		return "unknown"
	}
}

// Literal is a constant value. Value holds the raw text ("true", "42", ...).
type Literal struct {
	Kind  LiteralKind
	Value string
}

// ColumnRef references a column, optionally qualified by a table alias.
type ColumnRef struct {
	Table  string
	Column string
}

// ExprRef references an expression computed upstream ({expr:name}).
type ExprRef struct {
	Name string
}

// Concat concatenates its arguments.
type Concat struct {
	Args []Expr
}

// ConcatWs concatenates its arguments with a separator.
type ConcatWs struct {
	Separator Expr
	Args      []Expr
}

// Coalesce returns its first non-null argument.
type Coalesce struct {
	Args []Expr
}

// Hash256 is the lowercase 64-character hex SHA-256 of its argument.
type Hash256 struct {
	Arg Expr
}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// WindowFunction is a ranking/analytic function with an OVER clause.
type WindowFunction struct {
	Name        string
	Args        []Expr
	PartitionBy []Expr
	OrderBy     []OrderItem
}

// Cast converts an expression to a target type.
type Cast struct {
	Expr Expr
	Type string
}

// BinaryOp is a comparison or logical operator.
type BinaryOp string

// BinaryOp constants.
const (
	OpEq    BinaryOp = "="
	OpNotEq BinaryOp = "<>"
	OpAnd   BinaryOp = "AND"
	OpOr    BinaryOp = "OR"
)

// Binary applies an operator to two operands.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*Literal) exprNode()        {}
func (*ColumnRef) exprNode()      {}
func (*ExprRef) exprNode()        {}
func (*Concat) exprNode()         {}
func (*ConcatWs) exprNode()       {}
func (*Coalesce) exprNode()       {}
func (*Hash256) exprNode()        {}
func (*WindowFunction) exprNode() {}
func (*Cast) exprNode()           {}
func (*Binary) exprNode()         {}

// Str returns a string literal.
func Str(v string) *Literal { return &Literal{Kind: LiteralString, Value: v} }

// Num returns a numeric literal.
func Num(v string) *Literal { return &Literal{Kind: LiteralNumber, Value: v} }

// Bool returns a boolean literal.
func Bool(v bool) *Literal {
	if v {
		return &Literal{Kind: LiteralBool, Value: "true"}
	}
	return &Literal{Kind: LiteralBool, Value: "false"}
}

// Null returns the NULL literal.
func Null() *Literal { return &Literal{Kind: LiteralNull, Value: "NULL"} }

// Col returns an unqualified column reference.
func Col(name string) *ColumnRef { return &ColumnRef{Column: name} }

// QCol returns a qualified column reference.
func QCol(table, name string) *ColumnRef { return &ColumnRef{Table: table, Column: name} }

// Eq returns left = right.
func Eq(left, right Expr) *Binary { return &Binary{Op: OpEq, Left: left, Right: right} }

// And folds conditions with AND. Returns nil for no conditions.
func And(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = &Binary{Op: OpAnd, Left: out, Right: c}
	}
	return out
}
