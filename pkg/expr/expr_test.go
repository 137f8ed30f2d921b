package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := &Hash256{Arg: &ConcatWs{Separator: Str("|"), Args: []Expr{Col("a"), &Coalesce{Args: []Expr{Col("b"), Str("~")}}}}}
	b := &Hash256{Arg: &ConcatWs{Separator: Str("|"), Args: []Expr{Col("a"), &Coalesce{Args: []Expr{Col("b"), Str("~")}}}}}
	c := &Hash256{Arg: &ConcatWs{Separator: Str("|"), Args: []Expr{Col("a"), &Coalesce{Args: []Expr{Col("c"), Str("~")}}}}}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(Str("1"), Num("1")))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Col("a"), nil))
}

func TestResolve(t *testing.T) {
	defs := map[string]Expr{
		"full_name": &Concat{Args: []Expr{Col("first"), Str(" "), Col("last")}},
	}
	lookup := func(name string) (Expr, bool) {
		e, ok := defs[name]
		return e, ok
	}

	t.Run("replaces references", func(t *testing.T) {
		in := &Coalesce{Args: []Expr{&ExprRef{Name: "full_name"}, Str("?")}}
		out, err := Resolve(in, lookup)
		require.NoError(t, err)

		want := &Coalesce{Args: []Expr{defs["full_name"], Str("?")}}
		assert.True(t, Equal(want, out))
		// input untouched
		assert.IsType(t, &ExprRef{}, in.Args[0])
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := Resolve(&ExprRef{Name: "missing"}, lookup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "{expr:missing}")
	})
}

func TestColumnRefs(t *testing.T) {
	e := &WindowFunction{
		Name:        "ROW_NUMBER",
		PartitionBy: []Expr{Col("id")},
		OrderBy:     []OrderItem{{Expr: Col("loaded_at"), Desc: true}},
	}
	refs := ColumnRefs(e)
	require.Len(t, refs, 2)
	assert.Equal(t, "id", refs[0].Column)
	assert.Equal(t, "loaded_at", refs[1].Column)
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And())
	single := Eq(Col("a"), Col("b"))
	assert.Same(t, single, And(nil, single))

	two := And(single, Eq(Col("c"), Col("d")))
	bin, ok := two.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpAnd, bin.Op)
}

func TestEval(t *testing.T) {
	row := Row{"a": Value("x"), "b": nil, "t.c": Value("q")}

	tests := []struct {
		name string
		expr Expr
		want *string
	}{
		{"literal", Str("v"), Value("v")},
		{"null literal", Null(), nil},
		{"column", Col("a"), Value("x")},
		{"qualified column", QCol("t", "c"), Value("q")},
		{"coalesce skips null", &Coalesce{Args: []Expr{Col("b"), Str("~")}}, Value("~")},
		{"concat null is null", &Concat{Args: []Expr{Col("a"), Col("b")}}, nil},
		{"concat_ws", &ConcatWs{Separator: Str("|"), Args: []Expr{Col("a"), Str("y")}}, Value("x|y")},
		{"hash", &Hash256{Arg: Str("abc")}, Value("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")},
		{"hash null", &Hash256{Arg: Col("b")}, nil},
		{"cast passthrough", &Cast{Expr: Col("a"), Type: "VARCHAR"}, Value("x")},
		{"eq", Eq(Col("a"), Str("x")), Value("true")},
		{"eq null", Eq(Col("b"), Str("x")), nil},
		{"and false wins", And(Eq(Col("a"), Str("z")), Eq(Col("b"), Str("x"))), Value("false")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	_, err := Eval(Col("nope"), Row{})
	assert.Error(t, err)

	_, err = Eval(&ExprRef{Name: "x"}, Row{})
	assert.Error(t, err)

	_, err = Eval(&WindowFunction{Name: "ROW_NUMBER"}, Row{})
	assert.Error(t, err)
}
