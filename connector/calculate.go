package connector

import (
	"github.com/stokaro/schemapush/core/schema"
)

// InlineEnumName is the name an inline enum column's type gets in dialects that
// declare enums per column, such as MySQL.
func InlineEnumName(table, column string) string {
	return table + "_" + column
}

// InlineEnums rewrites a schema for dialects whose enums are part of the column
// definition: every enum-typed column gets its own enum named
// <Table>_<column> with the variants of the enum it referenced, and enums no
// column uses disappear. The input is not modified.
func InlineEnums(desired *schema.Schema) *schema.Schema {
	out := desired.Clone()
	out.Enums = nil
	for ti := range out.Tables {
		t := &out.Tables[ti]
		for ci := range t.Columns {
			c := &t.Columns[ci]
			if !c.Type.IsEnum() {
				continue
			}
			name := InlineEnumName(t.Name, c.Name)
			var variants []string
			if e := desired.Enum(c.Type.EnumName); e != nil {
				variants = append(variants, e.Variants...)
			}
			out.Enums = append(out.Enums, schema.Enum{Name: name, Variants: variants})
			c.Type = schema.EnumType(name)
		}
	}
	return out
}

// EnumsAsStrings rewrites a schema for dialects without enums: enum columns
// become unbounded strings, variant defaults become string literals and the enum
// definitions are dropped. The input is not modified.
func EnumsAsStrings(desired *schema.Schema) *schema.Schema {
	out := desired.Clone()
	out.Enums = nil
	for ti := range out.Tables {
		t := &out.Tables[ti]
		for ci := range t.Columns {
			c := &t.Columns[ci]
			if !c.Type.IsEnum() {
				continue
			}
			c.Type = schema.String(0)
			if c.Default != nil && c.Default.Kind == schema.DefaultEnumVariant {
				c.Default = schema.Literal(c.Default.Value)
			}
		}
	}
	return out
}

// NormalizeDefaults rewrites the literal defaults of s in place to the form the
// SQL connectors read back from their catalogs: boolean literals become true or
// false.
func NormalizeDefaults(s *schema.Schema) {
	for ti := range s.Tables {
		for ci := range s.Tables[ti].Columns {
			c := &s.Tables[ti].Columns[ci]
			if c.Type.Kind != schema.KindBoolean || c.Default == nil || c.Default.Kind != schema.DefaultLiteral {
				continue
			}
			if schema.IsTrue(c.Default.Value) {
				c.Default = schema.Literal("true")
			} else {
				c.Default = schema.Literal("false")
			}
		}
	}
}

// DefaultDecimals gives every Decimal column of s declared without precision
// the precision and scale the dialect creates it with. s is modified in place.
func DefaultDecimals(s *schema.Schema, precision, scale int) {
	for ti := range s.Tables {
		for ci := range s.Tables[ti].Columns {
			c := &s.Tables[ti].Columns[ci]
			if c.Type.Kind == schema.KindDecimal && c.Type.Precision == 0 {
				c.Type = schema.Decimal(precision, scale)
			}
		}
	}
}
