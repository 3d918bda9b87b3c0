// Package sqlite implements connector.Connector for SQLite.
//
// SQLite has no enums, so enum columns are stored as TEXT (see
// connector.EnumsAsStrings). Its ALTER TABLE cannot change columns or
// constraints of an existing table: those steps fail at render time with an
// error wrapping connector.ErrUnsupported, before anything is executed.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/internal/sqlconn"
	rsqlite "github.com/stokaro/schemapush/core/renderer/dialects/sqlite"
	"github.com/stokaro/schemapush/core/renderer/types"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/dbschema"
	planner "github.com/stokaro/schemapush/migration/planner/dialects/sqlite"
	"github.com/stokaro/schemapush/migration/steps"
)

var capabilities = map[connector.Capability]bool{
	connector.Enums:            false,
	connector.NamedEnumTypes:   false,
	connector.TransactionalDDL: true,
	connector.PartialIndexes:   true,
	connector.AlterColumnType:  false,
	connector.AlterForeignKeys: false,
	connector.DropColumn:       true,
	connector.AlterPrimaryKey:  false,
}

// Connector is the SQLite connector.
type Connector struct {
	sqlconn.Conn
	planner *planner.Planner
}

var _ connector.Connector = (*Connector)(nil)

// New creates a connector on an open SQLite connection.
func New(db *dbschema.DatabaseConnection) (*Connector, error) {
	if d := db.Info().Dialect; d != connector.SQLite {
		return nil, fmt.Errorf("failed to create sqlite connector: connection dialect is %q", d)
	}
	return &Connector{
		Conn: sqlconn.Conn{
			DB:        db,
			Quote:     rsqlite.QuoteIdentifier,
			WrapError: wrapError,
			Logger:    slog.Default(),
		},
		planner: planner.New(),
	}, nil
}

// WithLogger returns a copy of the connector that logs to l.
func (c *Connector) WithLogger(l *slog.Logger) *Connector {
	tmp := *c
	tmp.Logger = l
	tmp.DB = c.DB.WithLogger(l)
	return &tmp
}

func (c *Connector) Dialect() connector.Dialect {
	return connector.SQLite
}

func (c *Connector) Supports(cp connector.Capability) bool {
	return capabilities[cp]
}

// CalculateSchema stores enums as strings and makes autoincrement columns
// INTEGER, the only type SQLite accepts for them.
func (c *Connector) CalculateSchema(desired *schema.Schema) (*schema.Schema, error) {
	out := connector.EnumsAsStrings(desired)
	for ti := range out.Tables {
		for ci := range out.Tables[ti].Columns {
			col := &out.Tables[ti].Columns[ci]
			if col.AutoIncrement && col.Type.Kind == schema.KindBigInt {
				col.Type = schema.Int()
			}
		}
	}
	connector.NormalizeDefaults(out)
	return out, nil
}

func (c *Connector) DescribeType(t schema.ColumnType) string {
	return sqlconn.DescribeType(t, planner.ColumnType(t))
}

func (c *Connector) Render(s steps.Step) ([]connector.Statement, error) {
	return sqlconn.Render(c.planner, newRenderer, s)
}

func newRenderer() types.RenderVisitor {
	return rsqlite.New()
}

// ExecuteRaw runs the script in one transaction.
func (c *Connector) ExecuteRaw(ctx context.Context, script string) error {
	return c.Conn.ExecuteRaw(ctx, script, true)
}

var errorHints = map[sqlite3.ErrNoExtended]string{
	sqlite3.ErrConstraintNotNull:    "the column still contains NULL values",
	sqlite3.ErrConstraintForeignKey: "rows violate a foreign key",
	sqlite3.ErrConstraintUnique:     "existing values are not unique",
}

// wrapError explains common constraint failures.
func wrapError(err error) error {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return err
	}
	if hint, ok := errorHints[liteErr.ExtendedCode]; ok {
		return fmt.Errorf("%w (hint: %s)", err, hint)
	}
	return err
}
