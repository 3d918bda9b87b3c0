// Package sqlconn implements the parts of connector.Connector that the SQL
// connectors share: data counts, statement execution through a
// dbschema.Writer, rendering through a step planner and a dialect renderer, and
// type descriptions.
package sqlconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/renderer"
	"github.com/stokaro/schemapush/core/renderer/types"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/core/sqlutil"
	"github.com/stokaro/schemapush/dbschema"
	"github.com/stokaro/schemapush/migration/steps"
)

// Planner converts a step into AST nodes.
type Planner interface {
	Plan(s steps.Step) ([]ast.Node, error)
}

// Conn is embedded by the SQL connectors.
type Conn struct {
	DB *dbschema.DatabaseConnection
	// Quote quotes an identifier for the dialect.
	Quote func(string) string
	// WrapError adds dialect details to an execution error. It may be nil.
	WrapError func(error) error
	Logger    *slog.Logger
}

// RowCount counts the rows of a table.
func (c *Conn) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + c.Quote(table)
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// ColumnValueCounts counts the NULL and non-NULL values of a column.
func (c *Conn) ColumnValueCounts(ctx context.Context, table, column string) (connector.ValueCounts, error) {
	var total, nonNull int64
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(%s) FROM %s", c.Quote(column), c.Quote(table))
	if err := c.DB.QueryRowContext(ctx, query).Scan(&total, &nonNull); err != nil {
		return connector.ValueCounts{}, fmt.Errorf("failed to count values of %s.%s: %w", table, column, err)
	}
	return connector.ValueCounts{NonNull: nonNull, Null: total - nonNull}, nil
}

// Execute runs the statements in order, inside one transaction when
// transactional is set. A failing statement is reported as a
// *connector.ExecError; the transaction is rolled back first.
func (c *Conn) Execute(ctx context.Context, statements []connector.Statement, transactional bool) error {
	w := c.DB.Writer()
	if transactional {
		if err := w.BeginTransaction(ctx); err != nil {
			return err
		}
	}

	for i, stmt := range statements {
		err := ctx.Err()
		if err == nil {
			err = w.ExecuteSQL(ctx, stmt.SQL)
		}
		if err != nil {
			if transactional {
				if rbErr := w.RollbackTransaction(); rbErr != nil {
					c.Logger.Warn("rollback failed", "error", rbErr)
				}
			}
			return &connector.ExecError{Index: i, Statement: stmt, Err: c.wrap(err)}
		}
	}

	if transactional {
		return w.CommitTransaction()
	}
	return nil
}

// ExecuteRaw splits an operator-authored script into statements and runs them,
// inside one transaction when transactional is set.
func (c *Conn) ExecuteRaw(ctx context.Context, script string, transactional bool) error {
	return c.Execute(ctx, Statements(sqlutil.SplitSQLStatements(script)), transactional)
}

// Close closes the database handle.
func (c *Conn) Close() error {
	return c.DB.Close()
}

func (c *Conn) wrap(err error) error {
	if c.WrapError == nil {
		return err
	}
	return c.WrapError(err)
}

// Render plans a step with p and renders the nodes with a fresh renderer from
// newRenderer. A raw script is split into its statements.
func Render(p Planner, newRenderer func() types.RenderVisitor, s steps.Step) ([]connector.Statement, error) {
	if raw, ok := s.(steps.RawScript); ok {
		return Statements(sqlutil.SplitSQLStatements(raw.Script)), nil
	}
	nodes, err := p.Plan(s)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", s, err)
	}
	sqls, err := renderer.Statements(newRenderer(), nodes...)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", s, err)
	}
	return Statements(sqls), nil
}

// Statements wraps SQL strings.
func Statements(sqls []string) []connector.Statement {
	if len(sqls) == 0 {
		return nil
	}
	out := make([]connector.Statement, len(sqls))
	for i, s := range sqls {
		out[i] = connector.Statement{SQL: s}
	}
	return out
}

var typeNames = map[string]string{
	"VARCHAR":          "VarChar",
	"LONGTEXT":         "LongText",
	"BIGINT":           "BigInt",
	"TINYINT":          "TinyInt",
	"DATETIME":         "DateTime",
	"JSONB":            "JsonB",
	"BYTEA":            "ByteA",
	"LONGBLOB":         "LongBlob",
	"DOUBLE PRECISION": "DoublePrecision",
}

// DescribeType names a column type for warnings: enums as Enum("name"), other
// types by their dialect type in the casing of VarChar(191).
func DescribeType(t schema.ColumnType, sqlType string) string {
	if t.IsEnum() {
		return fmt.Sprintf("Enum(%q)", t.EnumName)
	}
	base, args, _ := strings.Cut(sqlType, "(")
	name, ok := typeNames[strings.ToUpper(base)]
	if !ok {
		name = strings.ReplaceAll(cases.Title(language.Und).String(strings.ToLower(base)), " ", "")
	}
	if args != "" {
		return name + "(" + args
	}
	return name
}
