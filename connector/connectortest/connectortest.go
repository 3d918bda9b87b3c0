// Package connectortest is the contract suite every connector.Connector
// implementation runs in its tests.
//
//	func TestContract(t *testing.T) {
//		connectortest.Run(t, connectortest.Harness{
//			Open:   openEmptyDatabase,
//			Insert: connectortest.SQLInsert(pq.QuoteIdentifier),
//		})
//	}
//
// The suite pushes a small schema with enums, defaults, indexes and foreign
// keys through push.Engine and checks that introspection reads back what was
// pushed, that safe changes apply without warnings and that destructive
// changes are held back until forced.
package connectortest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/destructive"
	"github.com/stokaro/schemapush/migration/push"
	"github.com/stokaro/schemapush/migration/schemadiff"
	"github.com/stokaro/schemapush/migration/steps"
)

// Harness adapts a connector implementation to the suite.
type Harness struct {
	// Open returns a connector on an empty database. It is called once per
	// test; closing the connector is left to the harness.
	Open func(t *testing.T) connector.Connector
	// Insert stores one row. Values are int, string, bool or nil.
	Insert func(t *testing.T, conn connector.Connector, table string, row map[string]any)
}

// SQLInsert returns an Insert function that runs an INSERT statement through
// ExecuteRaw, quoting identifiers with quote.
func SQLInsert(quote func(string) string) func(t *testing.T, conn connector.Connector, table string, row map[string]any) {
	return func(t *testing.T, conn connector.Connector, table string, row map[string]any) {
		t.Helper()
		columns := make([]string, 0, len(row))
		for col := range row {
			columns = append(columns, col)
		}
		sort.Strings(columns)

		quoted := make([]string, len(columns))
		values := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = quote(col)
			values[i] = literal(row[col])
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), strings.Join(values, ", "))
		if err := conn.ExecuteRaw(context.Background(), stmt); err != nil {
			t.Fatalf("failed to insert into %s: %v", table, err)
		}
	}
}

func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return fmt.Sprint(v)
	}
}

// BaseSchema is the schema the suite starts from.
func BaseSchema() *schema.Schema {
	return &schema.Schema{
		Enums: []schema.Enum{{Name: "CatMood", Variants: []string{"HAPPY", "HUNGRY"}}},
		Tables: []schema.Table{
			{
				Name: "Owner",
				Columns: []schema.Column{
					{Name: "id", Type: schema.Int(), AutoIncrement: true},
					{Name: "name", Type: schema.String(191)},
					{Name: "active", Type: schema.Boolean(), Default: schema.Literal("true")},
					{Name: "createdAt", Type: schema.DateTime(), Default: schema.Expression("now")},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "Cat",
				Columns: []schema.Column{
					{Name: "id", Type: schema.Int()},
					{Name: "name", Type: schema.String(191), Nullable: true},
					{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("HAPPY")},
					{Name: "weight", Type: schema.Decimal(10, 2), Nullable: true},
					{Name: "ownerId", Type: schema.Int(), Nullable: true},
				},
				PrimaryKey: []string{"id"},
				Indexes:    []schema.Index{{Columns: []string{"name"}}},
				ForeignKeys: []schema.ForeignKey{{
					Columns:           []string{"ownerId"},
					ReferencedTable:   "Owner",
					ReferencedColumns: []string{"id"},
					OnDelete:          schema.SetNull,
				}},
			},
		},
	}
}

// ExtendedSchema adds to BaseSchema only changes that are safe on a
// populated database: a nullable column, a new index replacing an old one and
// a new table referencing an existing one.
func ExtendedSchema() *schema.Schema {
	s := BaseSchema()
	cat := s.Table("Cat")
	cat.Columns = append(cat.Columns, schema.Column{Name: "age", Type: schema.Int(), Nullable: true})
	cat.Indexes = []schema.Index{{Columns: []string{"age"}}}
	s.Tables = append(s.Tables, schema.Table{
		Name: "Toy",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Int()},
			{Name: "catId", Type: schema.Int()},
			{Name: "label", Type: schema.String(0), Nullable: true},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{{
			Columns:           []string{"catId"},
			ReferencedTable:   "Cat",
			ReferencedColumns: []string{"id"},
			OnDelete:          schema.Cascade,
		}},
	})
	return s
}

// Run runs the contract suite.
func Run(t *testing.T, h Harness) {
	ctx := context.Background()

	t.Run("empty database has no tables", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)

		current, err := conn.Introspect(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(current.Tables, qt.HasLen, 0)
	})

	t.Run("pushed schema is read back", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)

		mustPush(c, conn, BaseSchema(), false)

		expected, err := conn.CalculateSchema(BaseSchema())
		c.Assert(err, qt.IsNil)
		current, err := conn.Introspect(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(describe(schemadiff.Compare(current, expected)), qt.HasLen, 0)
		names := current.TableNames()
		sort.Strings(names)
		c.Assert(names, qt.DeepEquals, []string{"Cat", "Owner"})
	})

	t.Run("second push has no steps", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)

		mustPush(c, conn, BaseSchema(), false)
		second := mustPush(c, conn, BaseSchema(), false)

		c.Assert(second.Steps, qt.HasLen, 0)
		c.Assert(second.ExecutedSteps, qt.Equals, 0)
	})

	t.Run("safe changes apply to a populated database", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		mustPush(c, conn, BaseSchema(), false)
		h.Insert(t, conn, "Owner", map[string]any{"id": 1, "name": "Jon"})
		h.Insert(t, conn, "Cat", map[string]any{"id": 1, "name": "Garfield", "ownerId": 1})

		result := mustPush(c, conn, ExtendedSchema(), false)
		c.Assert(result.Warnings, qt.HasLen, 0)
		c.Assert(result.ExecutedSteps, qt.Equals, len(result.Steps))

		again := mustPush(c, conn, ExtendedSchema(), false)
		c.Assert(again.Steps, qt.HasLen, 0)

		n, err := conn.RowCount(ctx, "Cat")
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, int64(1))
	})

	t.Run("dropping a populated table is blocked until forced", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		mustPush(c, conn, ExtendedSchema(), false)
		h.Insert(t, conn, "Cat", map[string]any{"id": 1})
		h.Insert(t, conn, "Toy", map[string]any{"id": 1, "catId": 1})

		without := ExtendedSchema()
		without.Tables = slices.DeleteFunc(without.Tables, func(t schema.Table) bool { return t.Name == "Toy" })

		blocked := mustPush(c, conn, without, false)
		c.Assert(blocked.Applied, qt.IsFalse)
		c.Assert(messages(blocked.Warnings), qt.DeepEquals, []string{
			"You are about to drop the `Toy` table, which is not empty (1 rows).",
		})
		n, err := conn.RowCount(ctx, "Toy")
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, int64(1))

		forced := mustPush(c, conn, without, true)
		c.Assert(forced.Applied, qt.IsTrue)
		current, err := conn.Introspect(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(current.Table("Toy"), qt.IsNil)
	})

	t.Run("counts answer the classifier", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		mustPush(c, conn, BaseSchema(), false)
		h.Insert(t, conn, "Cat", map[string]any{"id": 1, "name": "Tom"})
		h.Insert(t, conn, "Cat", map[string]any{"id": 2})

		n, err := conn.RowCount(ctx, "Cat")
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, int64(2))

		counts, err := conn.ColumnValueCounts(ctx, "Cat", "name")
		c.Assert(err, qt.IsNil)
		c.Assert(counts, qt.Equals, connector.ValueCounts{NonNull: 1, Null: 1})

		report := destructive.NewChecker(conn).Check(ctx, []steps.Step{steps.AddColumn{
			Table:  "Cat",
			Column: schema.Column{Name: "color", Type: schema.String(191)},
		}})
		c.Assert(messages(report.Unexecutable), qt.DeepEquals, []string{
			"Added the required column `color` to the `Cat` table without a default value. There are 2 rows in this table, it is not possible to execute this step.",
		})
	})

	t.Run("enum variants can be added and removed", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		if !conn.Supports(connector.Enums) {
			c.Skip("dialect has no enums")
		}
		mustPush(c, conn, BaseSchema(), false)
		h.Insert(t, conn, "Cat", map[string]any{"id": 1, "mood": "HAPPY"})

		added := BaseSchema()
		added.Enums[0].Variants = []string{"HAPPY", "HUNGRY", "SLEEPY"}
		result := mustPush(c, conn, added, false)
		c.Assert(result.Applied, qt.IsTrue)
		c.Assert(result.Warnings, qt.HasLen, 0)

		removed := BaseSchema()
		removed.Enums[0].Variants = []string{"HAPPY", "SLEEPY"}
		blocked := mustPush(c, conn, removed, false)
		c.Assert(blocked.Applied, qt.IsFalse)
		c.Assert(blocked.Warnings, qt.HasLen, 1)
		c.Assert(blocked.Warnings[0].Message, qt.Matches, "The migration will remove the values \\[HUNGRY\\] on the enum `.*`.*")

		mustPush(c, conn, removed, true)
		again := mustPush(c, conn, removed, false)
		c.Assert(again.Steps, qt.HasLen, 0)
	})

	t.Run("failing statement is reported by index", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		create := steps.CreateTable{Table: schema.Table{
			Name:       "Dup",
			Columns:    []schema.Column{{Name: "id", Type: schema.Int()}},
			PrimaryKey: []string{"id"},
		}}
		first, err := conn.Render(create)
		c.Assert(err, qt.IsNil)
		second, err := conn.Render(create)
		c.Assert(err, qt.IsNil)
		statements := append(first, second...)

		transactional := conn.Supports(connector.TransactionalDDL)
		err = conn.Execute(ctx, statements, transactional)

		var execErr *connector.ExecError
		c.Assert(errors.As(err, &execErr), qt.IsTrue, qt.Commentf("error: %v", err))
		c.Assert(execErr.Index, qt.Equals, len(first))

		current, err := conn.Introspect(ctx)
		c.Assert(err, qt.IsNil)
		if transactional {
			c.Assert(current.Table("Dup"), qt.IsNil)
		} else {
			c.Assert(current.Table("Dup"), qt.IsNotNil)
		}
	})

	t.Run("cancelled context stops execution", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		stmts, err := conn.Render(steps.CreateTable{Table: schema.Table{
			Name:    "Late",
			Columns: []schema.Column{{Name: "id", Type: schema.Int()}},
		}})
		c.Assert(err, qt.IsNil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err = conn.Execute(cctx, stmts, false)
		c.Assert(err, qt.ErrorIs, context.Canceled)
	})

	t.Run("raw script runs verbatim", func(t *testing.T) {
		c := qt.New(t)
		conn := h.Open(t)
		stmts, err := conn.Render(steps.CreateTable{Table: schema.Table{
			Name:       "Raw",
			Columns:    []schema.Column{{Name: "id", Type: schema.Int()}},
			PrimaryKey: []string{"id"},
		}})
		c.Assert(err, qt.IsNil)
		var script []string
		for _, s := range stmts {
			script = append(script, s.SQL)
		}

		err = push.New(conn).ApplyScript(ctx, strings.Join(script, ";\n")+";")
		c.Assert(err, qt.IsNil)

		current, err := conn.Introspect(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(current.Table("Raw"), qt.IsNotNil)
	})
}

func mustPush(c *qt.C, conn connector.Connector, desired *schema.Schema, force bool) *push.Result {
	c.Helper()
	result, err := push.New(conn).Push(context.Background(), desired, force)
	c.Assert(err, qt.IsNil)
	return result
}

func messages(findings []destructive.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Message)
	}
	return out
}

func describe(list []steps.Step) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.String())
	}
	return out
}
