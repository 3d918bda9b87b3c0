package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/connectortest"
	"github.com/stokaro/schemapush/connector/sqlite"
	rsqlite "github.com/stokaro/schemapush/core/renderer/dialects/sqlite"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/dbschema"
	"github.com/stokaro/schemapush/migration/push"
)

// openFile opens a connector on a new database file in a temporary directory.
func openFile(t *testing.T) connector.Connector {
	c := qt.New(t)
	db, err := dbschema.Connect(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	c.Assert(err, qt.IsNil)
	conn, err := sqlite.New(db)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestContract(t *testing.T) {
	connectortest.Run(t, connectortest.Harness{
		Open:   openFile,
		Insert: connectortest.SQLInsert(rsqlite.QuoteIdentifier),
	})
}

func TestConnector_IntrospectDefaults(t *testing.T) {
	c := qt.New(t)
	conn := openFile(t)
	ctx := context.Background()

	err := conn.ExecuteRaw(ctx, `
		CREATE TABLE "Cat" (
			"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			"name" TEXT NOT NULL DEFAULT 'it''s',
			"lives" INTEGER NOT NULL DEFAULT -1,
			"indoor" BOOLEAN NOT NULL DEFAULT FALSE,
			"bornAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX "Cat_name_key" ON "Cat" ("name") WHERE "lives" > 0;`)
	c.Assert(err, qt.IsNil)

	current, err := conn.Introspect(ctx)
	c.Assert(err, qt.IsNil)
	cat := current.Table("Cat")
	c.Assert(cat, qt.IsNotNil)
	c.Assert(cat.PrimaryKey, qt.DeepEquals, []string{"id"})
	c.Assert(cat.Column("id").AutoIncrement, qt.IsTrue)
	c.Assert(cat.Column("name").Default, qt.DeepEquals, schema.Literal("it's"))
	c.Assert(cat.Column("lives").Default, qt.DeepEquals, schema.Literal("-1"))
	c.Assert(cat.Column("indoor").Default, qt.DeepEquals, schema.Literal("false"))
	c.Assert(cat.Column("bornAt").Default, qt.DeepEquals, schema.Expression("now"))
	c.Assert(cat.Indexes, qt.DeepEquals, []schema.Index{{
		Name:    "Cat_name_key",
		Columns: []string{"name"},
		Unique:  true,
		Where:   `"lives" > 0`,
	}})
}

func TestConnector_CompositeForeignKey(t *testing.T) {
	c := qt.New(t)
	conn := openFile(t)
	ctx := context.Background()

	desired := &schema.Schema{Tables: []schema.Table{
		{
			Name: "Owner",
			Columns: []schema.Column{
				{Name: "first", Type: schema.String(50)},
				{Name: "last", Type: schema.String(50)},
			},
			PrimaryKey: []string{"first", "last"},
		},
		{
			Name: "Cat",
			Columns: []schema.Column{
				{Name: "id", Type: schema.Int()},
				{Name: "ownerFirst", Type: schema.String(50)},
				{Name: "ownerLast", Type: schema.String(50)},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{
				Columns:           []string{"ownerFirst", "ownerLast"},
				ReferencedTable:   "Owner",
				ReferencedColumns: []string{"first", "last"},
				OnDelete:          schema.Cascade,
			}},
		},
	}}

	result, err := push.New(conn).Push(ctx, desired, false)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Applied, qt.IsTrue)

	current, err := conn.Introspect(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(current.Table("Owner").PrimaryKey, qt.DeepEquals, []string{"first", "last"})
	fks := current.Table("Cat").ForeignKeys
	c.Assert(fks, qt.HasLen, 1)
	c.Assert(fks[0].Columns, qt.DeepEquals, []string{"ownerFirst", "ownerLast"})
	c.Assert(fks[0].ReferencedColumns, qt.DeepEquals, []string{"first", "last"})
	c.Assert(fks[0].OnDelete, qt.Equals, schema.Cascade)

	again, err := push.New(conn).Push(ctx, desired, false)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Steps, qt.HasLen, 0)
}
