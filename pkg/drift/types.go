package drift

import (
	"fmt"
	"strconv"
	"strings"
)

// Family groups canonical types that can be compared with each other.
type Family int

// Type families.
const (
	FamilyOther Family = iota
	FamilyInteger
	FamilyDecimal
	FamilyFloat
	FamilyString
	FamilyBoolean
	FamilyDate
	FamilyTimestamp
	FamilyTimestampTZ
	FamilyTime
	FamilyBinary
)

// Type is a canonical column type. Backend spellings of the same type
// (INT, INTEGER, NUMBER(38,0), BIGINT) canonicalize to the same Type.
type Type struct {
	Family Family
	Name   string

	// Rank orders integer and float widths.
	Rank int

	// Length of a string type; 0 is unbounded.
	Length int

	// Precision and Scale of a decimal; Precision 0 is unbounded.
	Precision int
	Scale     int
}

// String renders the canonical spelling.
func (t Type) String() string {
	switch t.Family {
	case FamilyString:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "VARCHAR"
	case FamilyDecimal:
		if t.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
		}
		return "DECIMAL"
	}
	return t.Name
}

// integer widths in decimal digits, indexed by rank
var integerDigits = map[int]int{1: 3, 2: 5, 3: 19, 4: 39}

// Canonicalize maps a backend type spelling to its canonical Type.
func Canonicalize(raw string) Type {
	base, params := splitType(raw)

	switch base {
	case "TINYINT", "INT1":
		return Type{Family: FamilyInteger, Name: "TINYINT", Rank: 1}
	case "SMALLINT", "INT2":
		return Type{Family: FamilyInteger, Name: "SMALLINT", Rank: 2}
	case "INT", "INTEGER", "INT4", "MEDIUMINT", "BIGINT", "INT8", "LONG", "SIGNED":
		return Type{Family: FamilyInteger, Name: "BIGINT", Rank: 3}
	case "HUGEINT", "INT128":
		return Type{Family: FamilyInteger, Name: "HUGEINT", Rank: 4}

	case "NUMBER", "NUMERIC", "DECIMAL", "DEC":
		if len(params) == 0 {
			if base == "NUMBER" {
				return Type{Family: FamilyInteger, Name: "BIGINT", Rank: 3}
			}
			return Type{Family: FamilyDecimal, Name: "DECIMAL"}
		}
		p := atoi(params[0])
		s := 0
		if len(params) > 1 {
			s = atoi(params[1])
		}
		if s == 0 {
			return Type{Family: FamilyInteger, Name: "BIGINT", Rank: 3}
		}
		return Type{Family: FamilyDecimal, Name: "DECIMAL", Precision: p, Scale: s}

	case "REAL", "FLOAT4":
		return Type{Family: FamilyFloat, Name: "REAL", Rank: 1}
	case "FLOAT":
		if len(params) > 0 && atoi(params[0]) <= 24 {
			return Type{Family: FamilyFloat, Name: "REAL", Rank: 1}
		}
		return Type{Family: FamilyFloat, Name: "DOUBLE", Rank: 2}
	case "DOUBLE", "FLOAT8", "DOUBLE PRECISION", "BINARY_DOUBLE":
		return Type{Family: FamilyFloat, Name: "DOUBLE", Rank: 2}

	case "VARCHAR", "CHARACTER VARYING", "NVARCHAR", "VARCHAR2", "NVARCHAR2", "CHAR", "CHARACTER", "NCHAR", "BPCHAR":
		t := Type{Family: FamilyString, Name: "VARCHAR"}
		switch {
		case len(params) > 0 && params[0] != "MAX":
			t.Length = atoi(params[0])
		case len(params) == 0 && (base == "CHAR" || base == "CHARACTER" || base == "NCHAR"):
			t.Length = 1
		}
		return t
	case "STRING", "TEXT", "NTEXT", "CLOB":
		return Type{Family: FamilyString, Name: "VARCHAR"}

	case "BOOLEAN", "BOOL", "BIT", "LOGICAL":
		return Type{Family: FamilyBoolean, Name: "BOOLEAN"}
	case "DATE":
		return Type{Family: FamilyDate, Name: "DATE"}
	case "TIMESTAMP", "DATETIME", "DATETIME2", "SMALLDATETIME", "TIMESTAMP_NTZ", "TIMESTAMP WITHOUT TIME ZONE":
		return Type{Family: FamilyTimestamp, Name: "TIMESTAMP"}
	case "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP_TZ", "TIMESTAMP_LTZ", "DATETIMEOFFSET":
		return Type{Family: FamilyTimestampTZ, Name: "TIMESTAMPTZ"}
	case "TIME", "TIME WITHOUT TIME ZONE":
		return Type{Family: FamilyTime, Name: "TIME"}
	case "BLOB", "BYTEA", "BINARY", "VARBINARY":
		return Type{Family: FamilyBinary, Name: "BLOB"}
	}
	return Type{Family: FamilyOther, Name: base}
}

// splitType upper-cases raw, removes the parenthesized parameter list and
// collapses whitespace: "timestamp(6) with time zone" becomes
// ("TIMESTAMP WITH TIME ZONE", ["6"]).
func splitType(raw string) (string, []string) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var params []string
	if open := strings.Index(s, "("); open >= 0 {
		if end := strings.Index(s[open:], ")"); end > 0 {
			for _, p := range strings.Split(s[open+1:open+end], ",") {
				params = append(params, strings.TrimSpace(p))
			}
			s = s[:open] + " " + s[open+end+1:]
		}
	}
	return strings.Join(strings.Fields(s), " "), params
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Change classifies the difference between a physical and a declared type.
type Change string

// Change kinds.
const (
	Equivalent   Change = "equivalent"
	Widening     Change = "widening"
	Narrowing    Change = "narrowing"
	Incompatible Change = "incompatible"
)

// Compare classifies moving a column from the physical to the declared type.
func Compare(physical, declared Type) Change {
	if physical.Family == declared.Family {
		return compareSameFamily(physical, declared)
	}

	switch {
	case physical.Family == FamilyInteger && declared.Family == FamilyDecimal:
		if declared.Precision == 0 || declared.Precision-declared.Scale >= integerDigits[physical.Rank] {
			return Widening
		}
		return Narrowing
	case (physical.Family == FamilyInteger || physical.Family == FamilyDecimal) && declared.Family == FamilyFloat:
		return Widening
	case physical.Family == FamilyFloat && (declared.Family == FamilyInteger || declared.Family == FamilyDecimal):
		return Narrowing
	case physical.Family == FamilyDecimal && declared.Family == FamilyInteger:
		return Narrowing
	case physical.Family == FamilyDate && (declared.Family == FamilyTimestamp || declared.Family == FamilyTimestampTZ):
		return Widening
	case (physical.Family == FamilyTimestamp || physical.Family == FamilyTimestampTZ) && declared.Family == FamilyDate:
		return Narrowing
	}
	return Incompatible
}

func compareSameFamily(physical, declared Type) Change {
	switch physical.Family {
	case FamilyInteger, FamilyFloat:
		return compareInts(physical.Rank, declared.Rank)

	case FamilyString:
		switch {
		case physical.Length == declared.Length:
			return Equivalent
		case declared.Length == 0:
			return Widening
		case physical.Length == 0:
			return Narrowing
		}
		return compareInts(physical.Length, declared.Length)

	case FamilyDecimal:
		switch {
		case physical.Precision == 0 && declared.Precision == 0:
			return Equivalent
		case declared.Precision == 0:
			return Widening
		case physical.Precision == 0:
			return Narrowing
		}
		pi, di := physical.Precision-physical.Scale, declared.Precision-declared.Scale
		switch {
		case pi == di && physical.Scale == declared.Scale:
			return Equivalent
		case di >= pi && declared.Scale >= physical.Scale:
			return Widening
		}
		return Narrowing

	case FamilyOther:
		if physical.Name == declared.Name {
			return Equivalent
		}
		return Incompatible
	}
	return Equivalent
}

func compareInts(physical, declared int) Change {
	switch {
	case physical == declared:
		return Equivalent
	case declared > physical:
		return Widening
	}
	return Narrowing
}
