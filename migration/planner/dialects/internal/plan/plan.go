// Package plan holds helpers shared by the dialect step planners.
package plan

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/schema"
)

// Unsupported returns an error wrapping connector.ErrUnsupported.
func Unsupported(dialect, format string, args ...any) error {
	return fmt.Errorf("%s: %w %s", fmt.Sprintf(format, args...), connector.ErrUnsupported, dialect)
}

// IsNumeric reports whether literals of the kind are written without quotes.
func IsNumeric(k schema.TypeKind) bool {
	switch k {
	case schema.KindInt, schema.KindBigInt, schema.KindFloat, schema.KindDecimal:
		return true
	default:
		return false
	}
}

// QuoteString quotes a string literal the standard SQL way, doubling quotes.
func QuoteString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// SinglePrimaryKey returns the primary key column of a table whose primary
// key has exactly one column.
func SinglePrimaryKey(t schema.Table) (string, bool) {
	if len(t.PrimaryKey) != 1 {
		return "", false
	}
	return t.PrimaryKey[0], true
}

// ForeignKey builds the constraint node of a foreign key owned by table. NO
// ACTION is omitted, as every dialect assumes it.
func ForeignKey(table string, fk schema.ForeignKey) *ast.ConstraintNode {
	ref := &ast.ForeignKeyRef{
		Table:   fk.ReferencedTable,
		Columns: fk.ReferencedColumns,
	}
	if a := fk.OnDelete.Normalize(); a != schema.NoAction {
		ref.OnDelete = string(a)
	}
	if a := fk.OnUpdate.Normalize(); a != schema.NoAction {
		ref.OnUpdate = string(a)
	}
	return ast.NewForeignKeyConstraint(schema.ForeignKeyName(table, fk), fk.Columns, ref)
}

// Index builds the CREATE INDEX node of an index on table.
func Index(table string, idx schema.Index) *ast.IndexNode {
	node := ast.NewIndex(schema.IndexName(table, idx), table, idx.Columns...)
	if idx.Unique {
		node.SetUnique()
	}
	if idx.Where != "" {
		node.SetCondition(idx.Where)
	}
	return node
}
