package registry_test

import (
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/memory"
	"github.com/stokaro/schemapush/connector/registry"
	"github.com/stokaro/schemapush/connector/sqlite"
	"github.com/stokaro/schemapush/dbschema"
)

func TestRegistry_Register(t *testing.T) {
	c := qt.New(t)
	r := registry.New()
	f := func(*dbschema.DatabaseConnection) (connector.Connector, error) { return memory.New(), nil }

	c.Assert(r.Register(connector.SQLite, f), qt.IsNil)
	err := r.Register(connector.SQLite, f)
	c.Assert(err, qt.ErrorMatches, `connector factory already registered for dialect "sqlite"`)
	c.Assert(r.Dialects(), qt.DeepEquals, []connector.Dialect{connector.SQLite})
}

func TestDefault(t *testing.T) {
	c := qt.New(t)
	c.Assert(registry.Default().Dialects(), qt.DeepEquals, []connector.Dialect{
		connector.MySQL, connector.Postgres, connector.SQLite,
	})
}

func TestRegistry_Open(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	conn, err := registry.Default().Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	c.Assert(err, qt.IsNil)
	defer conn.Close()
	_, ok := conn.(*sqlite.Connector)
	c.Assert(ok, qt.IsTrue)
	c.Assert(conn.Dialect(), qt.Equals, connector.SQLite)
}

func TestRegistry_OpenErrors(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	_, err := registry.Default().Open(ctx, "oracle://localhost/db")
	c.Assert(err, qt.ErrorMatches, `failed to connect: unsupported database URL scheme "oracle"`)

	_, err = registry.New().Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	c.Assert(err, qt.ErrorMatches, `no connector registered for dialect "sqlite"`)
}
