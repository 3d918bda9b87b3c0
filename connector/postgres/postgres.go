// Package postgres implements connector.Connector for PostgreSQL.
//
// Enums are named types, DDL is transactional and partial indexes are
// supported, so every capability is available. Introspection reads
// information_schema and pg_catalog of the connection's schema (search_path,
// "public" by default).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/internal/sqlconn"
	rpostgres "github.com/stokaro/schemapush/core/renderer/dialects/postgres"
	"github.com/stokaro/schemapush/core/renderer/types"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/dbschema"
	planner "github.com/stokaro/schemapush/migration/planner/dialects/postgres"
	"github.com/stokaro/schemapush/migration/steps"
)

// Connector is the PostgreSQL connector.
type Connector struct {
	sqlconn.Conn
	planner *planner.Planner
	schema  string
}

var (
	_ connector.Connector = (*Connector)(nil)
	_ connector.Locker    = (*Connector)(nil)
)

// New creates a connector on an open PostgreSQL connection.
func New(db *dbschema.DatabaseConnection) (*Connector, error) {
	if d := db.Info().Dialect; d != connector.Postgres {
		return nil, fmt.Errorf("failed to create postgres connector: connection dialect is %q", d)
	}
	return &Connector{
		Conn: sqlconn.Conn{
			DB:        db,
			Quote:     pq.QuoteIdentifier,
			WrapError: wrapError,
			Logger:    slog.Default(),
		},
		planner: planner.New(),
		schema:  db.Info().Schema,
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
	return connector.Postgres
}

func (c *Connector) Supports(connector.Capability) bool {
	return true
}

// CalculateSchema gives decimals without precision the precision they are
// created with and spells boolean defaults the way PostgreSQL reports them.
func (c *Connector) CalculateSchema(desired *schema.Schema) (*schema.Schema, error) {
	out := desired.Clone()
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
	return rpostgres.New()
}

// ExecuteRaw runs the script in one transaction.
func (c *Connector) ExecuteRaw(ctx context.Context, script string) error {
	return c.Conn.ExecuteRaw(ctx, script, true)
}

// Lock takes a session-level advisory lock on a dedicated connection. The key
// is hashed with FNV-1a into the lock's bigint identifier.
func (c *Connector) Lock(ctx context.Context, key string) (func(), error) {
	id := lockID(key)
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	c.Logger.Debug("advisory lock acquired", "key", key, "id", id)

	release := func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
			c.Logger.Warn("failed to release advisory lock", "key", key, "error", err)
		}
		_ = conn.Close()
	}
	return release, nil
}

func lockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // advisory lock ids are signed
}

// wrapError appends the detail and hint PostgreSQL attaches to an error.
func wrapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var extra []string
	if pgErr.Detail != "" {
		extra = append(extra, "detail: "+pgErr.Detail)
	}
	if pgErr.Hint != "" {
		extra = append(extra, "hint: "+pgErr.Hint)
	}
	if len(extra) == 0 {
		return err
	}
	return fmt.Errorf("%w (%s)", err, strings.Join(extra, "; "))
}
