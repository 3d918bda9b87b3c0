package postgres

import (
	"database/sql"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	planner "github.com/stokaro/schemapush/migration/planner/dialects/postgres"
	"github.com/stokaro/schemapush/migration/steps"
)

func TestParseDefault(t *testing.T) {
	mood := schema.EnumType("CatMood")
	tests := []struct {
		name     string
		def      string
		typ      schema.ColumnType
		expected *schema.DefaultValue
	}{
		{"text literal", "'abc'::text", schema.String(0), schema.Literal("abc")},
		{"escaped quote", "'it''s'::character varying", schema.String(10), schema.Literal("it's")},
		{"enum variant", `'HAPPY'::"CatMood"`, mood, schema.Variant("HAPPY")},
		{"integer", "42", schema.Int(), schema.Literal("42")},
		{"negative integer", "'-1'::integer", schema.Int(), schema.Literal("-1")},
		{"parenthesised", "(-1)", schema.Int(), schema.Literal("-1")},
		{"decimal", "1.50", schema.Decimal(10, 2), schema.Literal("1.50")},
		{"boolean", "true", schema.Boolean(), schema.Literal("true")},
		{"current timestamp", "CURRENT_TIMESTAMP", schema.DateTime(), schema.Expression("now")},
		{"now", "now()", schema.DateTime(), schema.Expression("now")},
		{"function", "gen_random_uuid()", schema.String(0), schema.Expression("gen_random_uuid")},
		{"json", "'{}'::jsonb", schema.JSON(), schema.Literal("{}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(parseDefault(tt.def, tt.typ), qt.DeepEquals, tt.expected)
		})
	}
}

func TestColumnType(t *testing.T) {
	r := &reader{enums: []schema.Enum{{Name: "CatMood", Variants: []string{"HAPPY"}}}}
	null := func(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: true} }

	tests := []struct {
		dataType, udtName string
		length            sql.NullInt64
		precision, scale  sql.NullInt64
		expected          schema.ColumnType
	}{
		{"integer", "int4", sql.NullInt64{}, null(32), null(0), schema.Int()},
		{"bigint", "int8", sql.NullInt64{}, null(64), null(0), schema.BigInt()},
		{"character varying", "varchar", null(191), sql.NullInt64{}, sql.NullInt64{}, schema.String(191)},
		{"text", "text", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, schema.String(0)},
		{"numeric", "numeric", sql.NullInt64{}, null(10), null(2), schema.Decimal(10, 2)},
		{"timestamp without time zone", "timestamp", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, schema.DateTime()},
		{"jsonb", "jsonb", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, schema.JSON()},
		{"USER-DEFINED", "CatMood", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{}, schema.EnumType("CatMood")},
	}

	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			c := qt.New(t)
			typ, err := r.columnType(tt.dataType, tt.udtName, tt.length, tt.precision, tt.scale)
			c.Assert(err, qt.IsNil)
			c.Assert(typ, qt.Equals, tt.expected)
		})
	}

	t.Run("unknown types are rejected", func(t *testing.T) {
		c := qt.New(t)
		_, err := r.columnType("USER-DEFINED", "geometry", sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{})
		c.Assert(err, qt.ErrorMatches, `unsupported column type "geometry"`)
	})
}

func TestConnector_CalculateSchema(t *testing.T) {
	c := qt.New(t)
	conn := &Connector{planner: planner.New()}
	desired := &schema.Schema{Tables: []schema.Table{{
		Name: "Cat",
		Columns: []schema.Column{
			{Name: "weight", Type: schema.Decimal(0, 0)},
			{Name: "indoor", Type: schema.Boolean(), Default: schema.Literal("1")},
		},
	}}}

	got, err := conn.CalculateSchema(desired)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Tables[0].Columns[0].Type, qt.Equals, schema.Decimal(65, 30))
	c.Assert(got.Tables[0].Columns[1].Default, qt.DeepEquals, schema.Literal("true"))
	c.Assert(desired.Tables[0].Columns[0].Type, qt.Equals, schema.Decimal(0, 0))
}

func TestConnector_Render(t *testing.T) {
	c := qt.New(t)
	conn := &Connector{planner: planner.New()}

	stmts, err := conn.Render(steps.CreateEnum{Enum: schema.Enum{Name: "CatMood", Variants: []string{"HAPPY", "HUNGRY"}}})
	c.Assert(err, qt.IsNil)
	c.Assert(stmts, qt.DeepEquals, []connector.Statement{{SQL: `CREATE TYPE "CatMood" AS ENUM ('HAPPY', 'HUNGRY')`}})

	c.Assert(conn.DescribeType(schema.String(191)), qt.Equals, "VarChar(191)")
	c.Assert(conn.DescribeType(schema.EnumType("CatMood")), qt.Equals, `Enum("CatMood")`)
	c.Assert(conn.Supports(connector.NamedEnumTypes), qt.IsTrue)
}

func TestWrapError(t *testing.T) {
	c := qt.New(t)
	pgErr := &pgconn.PgError{Severity: "ERROR", Code: "23502", Message: "column contains null values", Detail: "Failing row contains (1, null)."}

	err := wrapError(pgErr)
	c.Assert(err, qt.ErrorMatches, `ERROR: column contains null values \(SQLSTATE 23502\) \(detail: Failing row contains \(1, null\)\.\)`)
	c.Assert(errors.Is(err, pgErr), qt.IsTrue)

	plain := errors.New("boom")
	c.Assert(wrapError(plain), qt.Equals, plain)
}

func TestLockID(t *testing.T) {
	c := qt.New(t)
	c.Assert(lockID("schemapush"), qt.Equals, lockID("schemapush"))
	c.Assert(lockID("schemapush"), qt.Not(qt.Equals), lockID("other"))
	c.Assert(lockID("schemapush") >= 0, qt.IsTrue)
}
