package hashing

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dsl"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurrogateKey_Shape(t *testing.T) {
	got, err := SurrogateKey("product", []string{"productid"}, "pepper")
	require.NoError(t, err)

	want := dsl.MustParse(`HASH256(CONCAT_WS('|', CONCAT('productid','~',COALESCE(CAST(COL('productid') AS STRING),'null_replaced')), 'pepper'))`)
	assert.True(t, expr.Equal(want, got))
}

func TestSurrogateKey_NamesKeepDeclaredCase(t *testing.T) {
	got, err := SurrogateKey("d", []string{"b", "Region", "a"}, "p")
	require.NoError(t, err)

	text, err := dsl.Format(got)
	require.NoError(t, err)

	// Byte order puts upper case first and the literal keeps the declared spelling.
	assert.Less(t, strings.Index(text, "'Region'"), strings.Index(text, "'a'"))
	assert.Less(t, strings.Index(text, "'a'"), strings.Index(text, "'b'"))
	assert.NotContains(t, text, "'region'")
}

func TestPair_CastsValueToText(t *testing.T) {
	pair := Pair("qty", expr.Col("qty"))

	concat, ok := pair.(*expr.Concat)
	require.True(t, ok)
	coalesce, ok := concat.Args[2].(*expr.Coalesce)
	require.True(t, ok)
	cast, ok := coalesce.Args[0].(*expr.Cast)
	require.True(t, ok)
	assert.Equal(t, TextType, cast.Type)
	assert.True(t, expr.Equal(expr.Col("qty"), cast.Expr))
}

func TestSurrogateKey_OrderIndependent(t *testing.T) {
	a, err := SurrogateKey("d", []string{"b", "a", "c"}, "p")
	require.NoError(t, err)
	b, err := SurrogateKey("d", []string{"c", "b", "a"}, "p")
	require.NoError(t, err)

	assert.True(t, expr.Equal(a, b))
}

func TestSurrogateKey_Digest(t *testing.T) {
	sk, err := SurrogateKey("d", []string{"b", "a"}, "pep")
	require.NoError(t, err)

	tests := []struct {
		name string
		row  expr.Row
		want string
	}{
		{
			name: "all values",
			row:  expr.Row{"a": expr.Value("1"), "b": expr.Value("2")},
			want: "9ef5b14d263b0336ce49c728d822486d8d7f4c78aa766b2db189850573271262",
		},
		{
			name: "null replaced",
			row:  expr.Row{"a": expr.Value("1"), "b": nil},
			want: "db761fbcb02a10c189dfa05ddcc16b77e9793e85f0f7559567eddc218d6c4d21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(sk, tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSurrogateKey_Errors(t *testing.T) {
	_, err := SurrogateKey("d", nil, "p")
	var le *core.LineageIncompleteError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "d", le.Dataset)

	_, err = SurrogateKey("d", []string{"a", "A"}, "p")
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "A", le.Column)
}

func TestForeignKey_MirrorsParent(t *testing.T) {
	parent := &core.Dataset{Name: "customer", BusinessKeys: []string{"region", "customer_no"}}

	sk, err := SurrogateKey(parent.Name, parent.BusinessKeys, "p")
	require.NoError(t, err)

	fk, err := ForeignKey("orders", "customer_fk", parent, map[string]string{
		"customer_no": "cust_no",
		"region":      "cust_region",
	}, "p")
	require.NoError(t, err)

	// Same tree once the child column refs are mapped back to parent names.
	back, err := expr.MapColumns(fk, func(c *expr.ColumnRef) expr.Expr {
		switch c.Column {
		case "cust_no":
			return expr.Col("customer_no")
		case "cust_region":
			return expr.Col("region")
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, expr.Equal(sk, back))
	assert.False(t, expr.Equal(sk, fk))

	// And the digests agree for equal values.
	skHex, err := Compute(sk, expr.Row{"customer_no": expr.Value("42"), "region": expr.Value("eu")})
	require.NoError(t, err)
	fkHex, err := Compute(fk, expr.Row{"cust_no": expr.Value("42"), "cust_region": expr.Value("eu")})
	require.NoError(t, err)
	assert.Equal(t, skHex, fkHex)
}

func TestForeignKey_MissingMapping(t *testing.T) {
	parent := &core.Dataset{Name: "customer", BusinessKeys: []string{"id"}}

	_, err := ForeignKey("orders", "customer_fk", parent, map[string]string{}, "p")
	var le *core.LineageIncompleteError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "orders", le.Dataset)
	assert.Equal(t, "customer_fk", le.Column)

	_, err = ForeignKey("orders", "customer_fk", &core.Dataset{Name: "x"}, nil, "p")
	assert.ErrorAs(t, err, &le)
}

func TestRowHash(t *testing.T) {
	d := &core.Dataset{
		Name:         "customer",
		BusinessKeys: []string{"id"},
		Columns: []core.Column{
			{Name: "customer_sk", Role: core.RoleSurrogateKey},
			{Name: "id"},
			{Name: "b"},
			{Name: "a"},
			{Name: "row_hash", Role: core.RoleTechnical},
		},
	}
	attrs := RowHashAttributes(d)
	assert.Equal(t, []string{"b", "a"}, attrs)

	h := RowHash(attrs)
	got, err := Compute(h, expr.Row{"a": expr.Value("1"), "b": expr.Value("2")})
	require.NoError(t, err)
	assert.Equal(t, "88ac10cd0adf0a5c52e0c3644dcb76f51b9a6527036291d93ae32b1fa9dea3fe", got)

	empty, err := Compute(RowHash(nil), expr.Row{})
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", empty)
}
