// Package connector defines the boundary between the migration engine and a
// concrete database.
//
// A Connector introspects a live database into a schema.Schema, answers the data
// questions the destructive change classifier asks, renders steps into the
// dialect's DDL and executes it. Dialect differences are expressed as
// capabilities that callers can query, never as type switches on the connector.
package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/steps"
)

// Dialect names a SQL dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
	Memory   Dialect = "memory"
)

// Capability is a dialect feature the engine adapts to.
type Capability string

const (
	// Enums: enum-typed columns are supported at all.
	Enums Capability = "enums"
	// NamedEnumTypes: enums are standalone named types (CREATE TYPE) rather than
	// inline column definitions.
	NamedEnumTypes Capability = "named_enum_types"
	// TransactionalDDL: DDL statements can be rolled back.
	TransactionalDDL Capability = "transactional_ddl"
	// PartialIndexes: indexes can carry a WHERE predicate.
	PartialIndexes Capability = "partial_indexes"
	// AlterColumnType: existing columns can change type in place.
	AlterColumnType Capability = "alter_column_type"
	// AlterForeignKeys: foreign keys can be added to or dropped from existing tables.
	AlterForeignKeys Capability = "alter_foreign_keys"
	// DropColumn: columns can be dropped from existing tables.
	DropColumn Capability = "drop_column"
	// AlterPrimaryKey: the primary key of an existing table can be replaced.
	AlterPrimaryKey Capability = "alter_primary_key"
)

// ErrUnsupported is wrapped by render errors for steps the dialect cannot express.
var ErrUnsupported = errors.New("not supported by dialect")

// Statement is one rendered SQL statement.
type Statement struct {
	SQL string `json:"sql"`
}

func (s Statement) String() string {
	return s.SQL
}

// ValueCounts splits the rows of a table by whether a column holds a value.
type ValueCounts struct {
	NonNull int64
	Null    int64
}

// Connector is implemented once per dialect. Every implementation must pass
// connectortest.Run.
type Connector interface {
	// Dialect returns the SQL dialect of the connected database.
	Dialect() Dialect

	// Supports reports whether the dialect has the capability.
	Supports(c Capability) bool

	// Introspect reads the current schema of the database.
	Introspect(ctx context.Context) (*schema.Schema, error)

	// RowCount returns the number of rows in a table.
	RowCount(ctx context.Context, table string) (int64, error)

	// ColumnValueCounts counts NULL and non-NULL values of a column.
	ColumnValueCounts(ctx context.Context, table, column string) (ValueCounts, error)

	// CalculateSchema maps a dialect-independent desired schema onto what the
	// dialect can store, so that it compares equal to its own introspection once
	// applied. The input is not modified.
	CalculateSchema(desired *schema.Schema) (*schema.Schema, error)

	// DescribeType returns the dialect's name for a column type, as used in
	// warnings, e.g. VarChar(191) or Enum("CatMood").
	DescribeType(t schema.ColumnType) string

	// Render turns a step into the statements that perform it. A step may render
	// to no statements at all when the dialect performs it as part of another
	// step. Steps the dialect cannot express yield an error wrapping
	// ErrUnsupported.
	Render(s steps.Step) ([]Statement, error)

	// Execute runs the statements in order, inside one transaction when
	// transactional is true. It stops at the first failure and reports it as an
	// *ExecError. Cancellation of ctx between statements is reported the same way.
	Execute(ctx context.Context, statements []Statement, transactional bool) error

	// ExecuteRaw runs an operator-authored script verbatim.
	ExecuteRaw(ctx context.Context, script string) error

	// Close releases the database handle.
	Close() error
}

// Locker is implemented by connectors that can serialise migrations across
// processes, such as PostgreSQL with advisory locks.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done. The returned
	// function releases it.
	Lock(ctx context.Context, key string) (release func(), err error)
}

// ExecError reports the statement that failed during Execute.
type ExecError struct {
	// Index is the position of the failed statement in the executed slice.
	Index     int
	Statement Statement
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute statement %d (%s): %v", e.Index+1, e.Statement.SQL, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
