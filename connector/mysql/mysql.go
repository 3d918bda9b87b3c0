// Package mysql implements connector.Connector for MySQL.
//
// MySQL declares enums inline per column, so desired schemas are rewritten with
// connector.InlineEnums and enum names follow <Table>_<column>. DDL statements
// commit implicitly: a failed migration leaves the statements before the
// failing one applied.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/internal/sqlconn"
	rmysql "github.com/stokaro/schemapush/core/renderer/dialects/mysql"
	"github.com/stokaro/schemapush/core/renderer/types"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/dbschema"
	planner "github.com/stokaro/schemapush/migration/planner/dialects/mysql"
	"github.com/stokaro/schemapush/migration/steps"
)

var capabilities = map[connector.Capability]bool{
	connector.Enums:            true,
	connector.NamedEnumTypes:   false,
	connector.TransactionalDDL: false,
	connector.PartialIndexes:   false,
	connector.AlterColumnType:  true,
	connector.AlterForeignKeys: true,
	connector.DropColumn:       true,
	connector.AlterPrimaryKey:  true,
}

// Connector is the MySQL connector.
type Connector struct {
	sqlconn.Conn
	planner  *planner.Planner
	database string
}

var (
	_ connector.Connector = (*Connector)(nil)
	_ connector.Locker    = (*Connector)(nil)
)

// New creates a connector on an open MySQL connection.
func New(db *dbschema.DatabaseConnection) (*Connector, error) {
	if d := db.Info().Dialect; d != connector.MySQL {
		return nil, fmt.Errorf("failed to create mysql connector: connection dialect is %q", d)
	}
	return &Connector{
		Conn: sqlconn.Conn{
			DB:        db,
			Quote:     rmysql.QuoteIdentifier,
			WrapError: wrapError,
			Logger:    slog.Default(),
		},
		planner:  planner.New(),
		database: db.Info().Schema,
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
	return connector.MySQL
}

func (c *Connector) Supports(cp connector.Capability) bool {
	return capabilities[cp]
}

// CalculateSchema inlines enums per column, gives decimals without precision
// the precision they are created with and spells boolean defaults the way
// introspection reports them.
func (c *Connector) CalculateSchema(desired *schema.Schema) (*schema.Schema, error) {
	out := connector.InlineEnums(desired)
	connector.DefaultDecimals(out, planner.DefaultDecimalPrecision, planner.DefaultDecimalScale)
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
	return rmysql.New()
}

// ExecuteRaw runs the script statement by statement.
func (c *Connector) ExecuteRaw(ctx context.Context, script string) error {
	return c.Conn.ExecuteRaw(ctx, script, false)
}

// Lock takes a named lock with GET_LOCK on a dedicated connection. Lock names
// are global to the server, so the key is prefixed with the database name.
func (c *Connector) Lock(ctx context.Context, key string) (func(), error) {
	name := lockName(c.database, key)
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, -1)", name).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	if got.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %q: GET_LOCK did not grant it", name)
	}
	c.Logger.Debug("named lock acquired", "name", name)

	release := func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", name); err != nil {
			c.Logger.Warn("failed to release named lock", "name", name, "error", err)
		}
		_ = conn.Close()
	}
	return release, nil
}

// lockName builds a GET_LOCK name, which MySQL limits to 64 characters.
func lockName(database, key string) string {
	name := database + "." + key
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

var errorHints = map[uint16]string{
	1265: "existing values do not fit the new column type",
	1366: "existing values do not fit the new column type",
	1138: "the column still contains NULL values",
	1451: "rows in another table still reference this data",
	1452: "existing values have no matching row in the referenced table",
	3780: "the referencing and referenced columns have incompatible types",
}

// wrapError explains common MySQL errors raised by DDL.
func wrapError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	if hint, ok := errorHints[myErr.Number]; ok {
		return fmt.Errorf("%w (hint: %s)", err, hint)
	}
	return err
}
