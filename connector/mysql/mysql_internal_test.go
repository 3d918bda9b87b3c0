package mysql

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-sql-driver/mysql"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	planner "github.com/stokaro/schemapush/migration/planner/dialects/mysql"
	"github.com/stokaro/schemapush/migration/steps"
)

func TestParseEnumVariants(t *testing.T) {
	tests := []struct {
		columnType string
		expected   []string
	}{
		{"enum('HAPPY','HUNGRY')", []string{"HAPPY", "HUNGRY"}},
		{"enum('it''s','a,b')", []string{"it's", "a,b"}},
		{"enum('')", []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.columnType, func(t *testing.T) {
			c := qt.New(t)
			got, err := parseEnumVariants(tt.columnType)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.DeepEquals, tt.expected)
		})
	}

	t.Run("unterminated", func(t *testing.T) {
		c := qt.New(t)
		_, err := parseEnumVariants("enum('HAPPY)")
		c.Assert(err, qt.ErrorMatches, `invalid enum type .*`)
	})
}

func TestParseDefault(t *testing.T) {
	tests := []struct {
		name     string
		def      string
		extra    string
		typ      schema.ColumnType
		expected *schema.DefaultValue
	}{
		{"string literal", "abc", "", schema.String(191), schema.Literal("abc")},
		{"number", "42", "", schema.Int(), schema.Literal("42")},
		{"boolean", "1", "", schema.Boolean(), schema.Literal("true")},
		{"enum variant", "HAPPY", "", schema.EnumType("Cat_mood"), schema.Variant("HAPPY")},
		{"current timestamp", "CURRENT_TIMESTAMP(3)", "DEFAULT_GENERATED", schema.DateTime(), schema.Expression("now")},
		{"function", "uuid()", "DEFAULT_GENERATED", schema.String(36), schema.Expression("uuid")},
		{"text literal", `_utf8mb4\'it\'s\'`, "DEFAULT_GENERATED", schema.String(0), schema.Literal("it's")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(parseDefault(tt.def, tt.extra, tt.typ), qt.DeepEquals, tt.expected)
		})
	}
}

func TestColumnTypeOf(t *testing.T) {
	null := func(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }
	tests := []struct {
		dataType, columnType string
		length               sql.NullInt64
		precision, scale     sql.NullInt64
		expected             schema.ColumnType
	}{
		{"tinyint", "tinyint(1)", sql.NullInt64{}, null(3), null(0), schema.Boolean()},
		{"tinyint", "tinyint", sql.NullInt64{}, null(3), null(0), schema.Int()},
		{"int", "int", sql.NullInt64{}, null(10), null(0), schema.Int()},
		{"decimal", "decimal(10,2)", sql.NullInt64{}, null(10), null(2), schema.Decimal(10, 2)},
		{"varchar", "varchar(191)", null(191), sql.NullInt64{}, sql.NullInt64{}, schema.String(191)},
		{"longtext", "longtext", null(4294967295), sql.NullInt64{}, sql.NullInt64{}, schema.String(0)},
		{"datetime", "datetime(3)", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, schema.DateTime()},
		{"longblob", "longblob", null(4294967295), sql.NullInt64{}, sql.NullInt64{}, schema.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.columnType, func(t *testing.T) {
			c := qt.New(t)
			got, err := columnTypeOf(tt.dataType, tt.columnType, tt.length, tt.precision, tt.scale)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.expected)
		})
	}

	t.Run("unknown types are rejected", func(t *testing.T) {
		c := qt.New(t)
		_, err := columnTypeOf("geometry", "geometry", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{})
		c.Assert(err, qt.ErrorMatches, `unsupported column type "geometry"`)
	})
}

func TestBacksForeignKey(t *testing.T) {
	c := qt.New(t)
	tbl := &schema.Table{ForeignKeys: []schema.ForeignKey{{Name: "Cat_ownerId_fkey"}}}
	c.Assert(backsForeignKey(tbl, "Cat_ownerId_fkey"), qt.IsTrue)
	c.Assert(backsForeignKey(tbl, "Cat_name_idx"), qt.IsFalse)
}

func TestConnector_CalculateSchema(t *testing.T) {
	c := qt.New(t)
	conn := &Connector{planner: planner.New()}
	desired := &schema.Schema{
		Enums: []schema.Enum{{Name: "CatMood", Variants: []string{"HAPPY"}}},
		Tables: []schema.Table{{
			Name: "Cat",
			Columns: []schema.Column{
				{Name: "mood", Type: schema.EnumType("CatMood")},
				{Name: "weight", Type: schema.Decimal(0, 0)},
				{Name: "indoor", Type: schema.Boolean(), Default: schema.Literal("FALSE")},
			},
		}},
	}

	got, err := conn.CalculateSchema(desired)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Enums, qt.DeepEquals, []schema.Enum{{Name: "Cat_mood", Variants: []string{"HAPPY"}}})
	c.Assert(got.Tables[0].Columns[0].Type, qt.Equals, schema.EnumType("Cat_mood"))
	c.Assert(got.Tables[0].Columns[1].Type, qt.Equals, schema.Decimal(65, 30))
	c.Assert(got.Tables[0].Columns[2].Default, qt.DeepEquals, schema.Literal("false"))
}

func TestConnector_Render(t *testing.T) {
	c := qt.New(t)
	conn := &Connector{planner: planner.New()}

	stmts, err := conn.Render(steps.CreateEnum{Enum: schema.Enum{Name: "Cat_mood", Variants: []string{"HAPPY"}}})
	c.Assert(err, qt.IsNil)
	c.Assert(stmts, qt.HasLen, 0)

	stmts, err = conn.Render(steps.DropTable{Table: schema.Table{Name: "Cat"}})
	c.Assert(err, qt.IsNil)
	c.Assert(stmts, qt.DeepEquals, []connector.Statement{{SQL: "DROP TABLE `Cat`"}})

	c.Assert(conn.DescribeType(schema.String(0)), qt.Equals, "LongText")
	c.Assert(conn.Supports(connector.TransactionalDDL), qt.IsFalse)
	c.Assert(conn.Supports(connector.Enums), qt.IsTrue)
}

func TestLockName(t *testing.T) {
	c := qt.New(t)
	c.Assert(lockName("shop", "schemapush"), qt.Equals, "shop.schemapush")
	c.Assert(lockName(strings.Repeat("x", 70), "schemapush"), qt.HasLen, 64)
}

func TestWrapError(t *testing.T) {
	c := qt.New(t)
	myErr := &mysql.MySQLError{Number: 1265, Message: "Data truncated for column 'age' at row 1"}

	err := wrapError(myErr)
	c.Assert(err, qt.ErrorMatches, `Error 1265.*: Data truncated for column 'age' at row 1 \(hint: existing values do not fit the new column type\)`)
	c.Assert(errors.Is(err, myErr), qt.IsTrue)

	other := &mysql.MySQLError{Number: 1050, Message: "Table 'Cat' already exists"}
	c.Assert(wrapError(other), qt.Equals, error(other))
}
