package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  expr.Expr
	}{
		{
			name:  "string single quotes",
			input: `'abc'`,
			want:  expr.Str("abc"),
		},
		{
			name:  "string double quotes with escaped quote",
			input: `"a""b"`,
			want:  expr.Str(`a"b`),
		},
		{
			name:  "number",
			input: `-12.5`,
			want:  expr.Num("-12.5"),
		},
		{
			name:  "booleans and null",
			input: `COALESCE(true, FALSE, null)`,
			want:  &expr.Coalesce{Args: []expr.Expr{expr.Bool(true), expr.Bool(false), expr.Null()}},
		},
		{
			name:  "reference",
			input: `{expr:productid}`,
			want:  &expr.ExprRef{Name: "productid"},
		},
		{
			name:  "col function",
			input: `col('city')`,
			want:  expr.Col("city"),
		},
		{
			name:  "qualified col function",
			input: `COL('s', city)`,
			want:  expr.QCol("s", "city"),
		},
		{
			name:  "bare qualified column",
			input: `s.city`,
			want:  expr.QCol("s", "city"),
		},
		{
			name:  "cast",
			input: `CAST(NULL AS DECIMAL(18, 2))`,
			want:  &expr.Cast{Expr: expr.Null(), Type: "DECIMAL(18, 2)"},
		},
		{
			name:  "surrogate key",
			input: `HASH256(CONCAT_WS('|', CONCAT('productid','~',COALESCE({expr:productid},'null_replaced')), 'pepper'))`,
			want: &expr.Hash256{Arg: &expr.ConcatWs{
				Separator: expr.Str("|"),
				Args: []expr.Expr{
					&expr.Concat{Args: []expr.Expr{
						expr.Str("productid"),
						expr.Str("~"),
						&expr.Coalesce{Args: []expr.Expr{&expr.ExprRef{Name: "productid"}, expr.Str("null_replaced")}},
					}},
					expr.Str("pepper"),
				},
			}},
		},
		{
			name:  "parentheses inside strings",
			input: `CONCAT('(', ')', ",")`,
			want:  &expr.Concat{Args: []expr.Expr{expr.Str("("), expr.Str(")"), expr.Str(",")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, expr.Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fragment string
		msg      string
	}{
		{"empty", ``, "", "empty expression"},
		{"missing close paren", `HASH256(CONCAT('a', 'b')`, `HASH256(CONCAT('a', 'b')`, "missing ')'"},
		{"missing inner close paren", `HASH256(CONCAT('a'`, `CONCAT('a'`, "missing ')'"},
		{"extra close paren", `CONCAT('a'))`, `)`, "unexpected ')'"},
		{"unknown function", `MD5('a')`, `MD5`, "unknown function MD5"},
		{"malformed reference", `COALESCE({exp:a}, 'x')`, `{exp:a}`, "malformed expression reference"},
		{"empty reference", `{expr:}`, `{expr:}`, "malformed expression reference name"},
		{"unterminated reference", `{expr:abc`, `{expr:abc`, "unterminated expression reference"},
		{"unterminated string", `CONCAT('abc`, `'abc`, "unterminated string literal"},
		{"wrong arity", `HASH256('a', 'b')`, `HASH256('a', 'b')`, "HASH256 expects 1 argument(s), got 2"},
		{"concat_ws needs args", `CONCAT_WS('|')`, `CONCAT_WS('|')`, "at least 2"},
		{"missing comma", `CONCAT('a' 'b')`, `CONCAT('a' 'b')`, "expected ',' or ')'"},
		{"trailing input", `'a' 'b'`, `'b'`, "unexpected trailing input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, got)

			var pe *core.ParseError
			require.True(t, errors.As(err, &pe), "expected *core.ParseError, got %T", err)
			assert.Equal(t, tt.fragment, pe.Fragment)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestParse_DepthLimit(t *testing.T) {
	nested := func(n int) string {
		return strings.Repeat("COALESCE(", n) + "'x'" + strings.Repeat(")", n)
	}

	_, err := Parse(nested(MaxDepth))
	require.NoError(t, err)

	_, err = Parse(nested(MaxDepth + 1))
	var pe *core.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "nested deeper than")
}

func TestParseColumn_StampsIdentity(t *testing.T) {
	_, err := ParseColumn("customer", "customer_sk", `HASH256(`)
	require.Error(t, err)

	var pe *core.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "customer", pe.Dataset)
	assert.Equal(t, "customer_sk", pe.Column)
	assert.Contains(t, err.Error(), "customer.customer_sk")
}

func TestFormat_RoundTrip(t *testing.T) {
	inputs := []string{
		`HASH256(CONCAT_WS('|', CONCAT('id', '~', COALESCE(COL('id'), 'null_replaced')), 'pepper'))`,
		`COALESCE({expr:name}, 'it''s', 42, TRUE, NULL)`,
		`CAST(COL('s', 'amount') AS DECIMAL(18,2))`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			parsed, err := Parse(in)
			require.NoError(t, err)

			text, err := Format(parsed)
			require.NoError(t, err)
			assert.Equal(t, in, text)

			again, err := Parse(text)
			require.NoError(t, err)
			assert.True(t, expr.Equal(parsed, again))
		})
	}
}

func TestFormat_Unsupported(t *testing.T) {
	_, err := Format(&expr.WindowFunction{Name: "ROW_NUMBER"})
	assert.Error(t, err)
}
