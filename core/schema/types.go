package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind is the abstract kind of a column type.
type TypeKind int

const (
	KindInt TypeKind = iota + 1
	KindBigInt
	KindFloat
	KindDecimal
	KindString
	KindBoolean
	KindDateTime
	KindJSON
	KindBytes
	KindEnum
)

var kindNames = map[TypeKind]string{
	KindInt:      "Int",
	KindBigInt:   "BigInt",
	KindFloat:    "Float",
	KindDecimal:  "Decimal",
	KindString:   "String",
	KindBoolean:  "Boolean",
	KindDateTime: "DateTime",
	KindJSON:     "Json",
	KindBytes:    "Bytes",
	KindEnum:     "Enum",
}

func (k TypeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// ColumnType is a logical column type.
//
// Length applies to String (0 means unbounded), Precision and Scale apply to
// Decimal, EnumName applies to Enum.
type ColumnType struct {
	Kind      TypeKind
	Length    int
	Precision int
	Scale     int
	EnumName  string
}

// Convenience constructors.
func Int() ColumnType                 { return ColumnType{Kind: KindInt} }
func BigInt() ColumnType              { return ColumnType{Kind: KindBigInt} }
func Float() ColumnType               { return ColumnType{Kind: KindFloat} }
func Decimal(p, s int) ColumnType     { return ColumnType{Kind: KindDecimal, Precision: p, Scale: s} }
func String(length int) ColumnType    { return ColumnType{Kind: KindString, Length: length} }
func Boolean() ColumnType             { return ColumnType{Kind: KindBoolean} }
func DateTime() ColumnType            { return ColumnType{Kind: KindDateTime} }
func JSON() ColumnType                { return ColumnType{Kind: KindJSON} }
func Bytes() ColumnType               { return ColumnType{Kind: KindBytes} }
func EnumType(name string) ColumnType { return ColumnType{Kind: KindEnum, EnumName: name} }

// String renders the textual form, e.g. "String(191)", "Decimal(10,2)" or "Enum(CatMood)".
func (t ColumnType) String() string {
	switch t.Kind {
	case KindString:
		if t.Length > 0 {
			return fmt.Sprintf("String(%d)", t.Length)
		}
		return "String"
	case KindDecimal:
		if t.Precision > 0 {
			return fmt.Sprintf("Decimal(%d,%d)", t.Precision, t.Scale)
		}
		return "Decimal"
	case KindEnum:
		return fmt.Sprintf("Enum(%s)", t.EnumName)
	default:
		return t.Kind.String()
	}
}

// Equal reports whether two types are identical.
func (t ColumnType) Equal(o ColumnType) bool {
	return t == o
}

// IsEnum reports whether the type references an enum.
func (t ColumnType) IsEnum() bool {
	return t.Kind == KindEnum
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	if t.Kind == 0 {
		return nil, fmt.Errorf("column type has no kind")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseColumnType parses the textual form produced by ColumnType.String.
// Kind names are matched case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.TrimSpace(s)
	name, args := s, ""
	if open := strings.Index(s, "("); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return ColumnType{}, fmt.Errorf("invalid column type %q: missing closing parenthesis", s)
		}
		name = strings.TrimSpace(s[:open])
		args = strings.TrimSpace(s[open+1 : len(s)-1])
	}

	var kind TypeKind
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			kind = k
			break
		}
	}
	if kind == 0 {
		return ColumnType{}, fmt.Errorf("unknown column type %q", s)
	}

	t := ColumnType{Kind: kind}
	switch kind {
	case KindString:
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil || n < 0 {
				return ColumnType{}, fmt.Errorf("invalid string length in %q", s)
			}
			t.Length = n
		}
	case KindDecimal:
		if args != "" {
			parts := strings.Split(args, ",")
			if len(parts) != 2 {
				return ColumnType{}, fmt.Errorf("invalid decimal arguments in %q", s)
			}
			p, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			sc, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil || p <= 0 || sc < 0 || sc > p {
				return ColumnType{}, fmt.Errorf("invalid decimal arguments in %q", s)
			}
			t.Precision, t.Scale = p, sc
		}
	case KindEnum:
		if args == "" {
			return ColumnType{}, fmt.Errorf("enum type %q must name the enum", s)
		}
		t.EnumName = args
	default:
		if args != "" {
			return ColumnType{}, fmt.Errorf("column type %q takes no arguments", s)
		}
	}
	return t, nil
}

// IsWidening reports whether converting values of type from into type to can never
// lose data or fail. Identical types are widening. Changes to or from enums are
// never widening, since the cast depends on the stored values.
func IsWidening(from, to ColumnType) bool {
	if from.Equal(to) {
		return true
	}
	if from.Kind == KindEnum || to.Kind == KindEnum {
		return false
	}
	switch from.Kind {
	case KindInt:
		switch to.Kind {
		case KindBigInt, KindFloat, KindDecimal:
			return to.Kind != KindDecimal || to.Precision == 0 || to.Precision-to.Scale >= 10
		case KindString:
			return to.Length == 0 || to.Length >= 11
		}
	case KindBigInt:
		switch to.Kind {
		case KindDecimal:
			return to.Precision == 0 || to.Precision-to.Scale >= 19
		case KindString:
			return to.Length == 0 || to.Length >= 20
		}
	case KindFloat:
		return to.Kind == KindString && to.Length == 0
	case KindDecimal:
		if to.Kind == KindDecimal {
			if from.Precision == 0 {
				return to.Precision == 0
			}
			return to.Precision == 0 ||
				(to.Scale >= from.Scale && to.Precision-to.Scale >= from.Precision-from.Scale)
		}
		return to.Kind == KindString && to.Length == 0
	case KindString:
		if to.Kind == KindString {
			return to.Length == 0 || (from.Length > 0 && to.Length >= from.Length)
		}
	case KindBoolean:
		switch to.Kind {
		case KindInt, KindBigInt:
			return true
		case KindString:
			return to.Length == 0 || to.Length >= 5
		}
	case KindDateTime, KindJSON:
		return to.Kind == KindString && to.Length == 0
	}
	return false
}

// DefaultKind distinguishes the three forms a column default can take.
type DefaultKind int

const (
	// DefaultLiteral is a constant value such as 'abc', 42 or true.
	DefaultLiteral DefaultKind = iota + 1
	// DefaultEnumVariant references a variant of the column's enum.
	DefaultEnumVariant
	// DefaultExpression is a database expression such as now().
	DefaultExpression
)

// DefaultValue is a column default. Value holds the unquoted literal, the variant
// name or the expression text, depending on Kind.
type DefaultValue struct {
	Kind  DefaultKind `json:"kind"`
	Value string      `json:"value"`
}

// Literal returns a literal default.
func Literal(v string) *DefaultValue { return &DefaultValue{Kind: DefaultLiteral, Value: v} }

// Variant returns an enum-variant default.
func Variant(v string) *DefaultValue { return &DefaultValue{Kind: DefaultEnumVariant, Value: v} }

// Expression returns an expression default.
func Expression(expr string) *DefaultValue {
	return &DefaultValue{Kind: DefaultExpression, Value: expr}
}

// IsTrue reports whether a boolean literal default is true. Databases and
// schema files spell booleans differently, so 1, t and yes count as true.
func IsTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "t", "yes":
		return true
	default:
		return false
	}
}

// Equal compares two defaults; nil equals only nil. Expressions compare
// case-insensitively since databases report them with varying case.
func (d *DefaultValue) Equal(o *DefaultValue) bool {
	if d == nil || o == nil {
		return d == nil && o == nil
	}
	if d.Kind != o.Kind {
		return false
	}
	if d.Kind == DefaultExpression {
		return strings.EqualFold(strings.TrimSpace(d.Value), strings.TrimSpace(o.Value))
	}
	return d.Value == o.Value
}

func (d *DefaultValue) String() string {
	if d == nil {
		return "<none>"
	}
	switch d.Kind {
	case DefaultEnumVariant:
		return d.Value
	case DefaultExpression:
		return d.Value + "()"
	default:
		return strconv.Quote(d.Value)
	}
}
