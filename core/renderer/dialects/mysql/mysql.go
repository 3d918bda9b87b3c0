// Package mysql renders AST nodes as MySQL statements.
package mysql

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/renderer/dialects/internal/base"
	"github.com/stokaro/schemapush/core/renderer/dialects/internal/bufwriter"
	"github.com/stokaro/schemapush/core/renderer/types"
)

var (
	_ types.RenderVisitor = (*Renderer)(nil)
)

// Renderer provides MySQL-specific SQL rendering
type Renderer struct {
	*base.Renderer
}

// New creates a new MySQL renderer
func New() *Renderer {
	w := &bufwriter.Writer{}
	return &Renderer{
		Renderer: base.New("mysql", w, base.Options{
			QuoteIdent:    QuoteIdentifier,
			AutoIncrement: "AUTO_INCREMENT",
		}),
	}
}

// QuoteIdentifier quotes a MySQL identifier with backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Render renders an AST node to SQL and returns the result
func (r *Renderer) Render(node ast.Node) (string, error) {
	return r.RenderWith(r, node)
}

// VisitAlterTable renders MySQL-specific ALTER TABLE statements.
//
// MySQL changes a column by restating it with MODIFY COLUMN, drops foreign keys
// with DROP FOREIGN KEY and the primary key with DROP PRIMARY KEY.
func (r *Renderer) VisitAlterTable(node *ast.AlterTableNode) error {
	clauses := make([]string, 0, len(node.Operations))
	for _, op := range node.Operations {
		var clause string
		switch op := op.(type) {
		case *ast.ModifyColumnOperation:
			clause = "MODIFY COLUMN " + r.ColumnDefinition(op.Column)
		case *ast.DropConstraintOperation:
			if op.ForeignKey {
				clause = "DROP FOREIGN KEY " + r.Quote(op.Name)
			} else {
				clause = "DROP CONSTRAINT " + r.Quote(op.Name)
			}
		case *ast.DropPrimaryKeyOperation:
			clause = "DROP PRIMARY KEY"
		case *ast.AlterColumnTypeOperation, *ast.AlterColumnNullOperation:
			return fmt.Errorf("failed to render alter table %q: %w", node.Name, r.Unsupported(base.OperationName(op)))
		default:
			var err error
			clause, err = r.AlterOperation(op)
			if err != nil {
				return fmt.Errorf("failed to render alter table %q: %w", node.Name, err)
			}
		}
		clauses = append(clauses, clause)
	}
	r.Statementf("ALTER TABLE %s %s", r.Quote(node.Name), strings.Join(clauses, ", "))
	return nil
}

// VisitDropIndex renders DROP INDEX ... ON, since MySQL indexes are table scoped
func (r *Renderer) VisitDropIndex(node *ast.DropIndexNode) error {
	if node.Table == "" {
		return fmt.Errorf("failed to render drop index %q: MySQL requires the table name", node.Name)
	}
	r.Statementf("DROP INDEX %s ON %s", r.Quote(node.Name), r.Quote(node.Table))
	return nil
}

// VisitIndex renders CREATE INDEX; MySQL has no partial indexes
func (r *Renderer) VisitIndex(node *ast.IndexNode) error {
	if node.Condition != "" {
		return r.Unsupported(fmt.Sprintf("partial index %s", node.Name))
	}
	return r.Renderer.VisitIndex(node)
}
