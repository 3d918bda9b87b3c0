// Package postgres renders AST nodes as PostgreSQL statements.
package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/renderer/dialects/internal/base"
	"github.com/stokaro/schemapush/core/renderer/dialects/internal/bufwriter"
	"github.com/stokaro/schemapush/core/renderer/types"
)

var (
	_ types.RenderVisitor = (*Renderer)(nil)
)

// Renderer provides PostgreSQL-specific SQL rendering
type Renderer struct {
	*base.Renderer
}

// New creates a new PostgreSQL renderer
func New() *Renderer {
	w := &bufwriter.Writer{}
	return &Renderer{
		Renderer: base.New("postgres", w, base.Options{
			QuoteIdent:    pq.QuoteIdentifier,
			AutoIncrement: "GENERATED BY DEFAULT AS IDENTITY",
		}),
	}
}

// Render renders an AST node to SQL and returns the result
func (r *Renderer) Render(node ast.Node) (string, error) {
	return r.RenderWith(r, node)
}

// VisitAlterTable renders ALTER TABLE, including identity changes
func (r *Renderer) VisitAlterTable(node *ast.AlterTableNode) error {
	clauses := make([]string, 0, len(node.Operations))
	for _, op := range node.Operations {
		if op, ok := op.(*ast.AlterColumnIdentityOperation); ok {
			if op.Add {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s ADD GENERATED BY DEFAULT AS IDENTITY", r.Quote(op.ColumnName)))
			} else {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP IDENTITY IF EXISTS", r.Quote(op.ColumnName)))
			}
			continue
		}
		clause, err := r.AlterOperation(op)
		if err != nil {
			return fmt.Errorf("failed to render alter table %q: %w", node.Name, err)
		}
		clauses = append(clauses, clause)
	}
	r.Statementf("ALTER TABLE %s %s", r.Quote(node.Name), strings.Join(clauses, ", "))
	return nil
}

// VisitEnum renders CREATE TYPE ... AS ENUM
func (r *Renderer) VisitEnum(node *ast.EnumNode) error {
	values := make([]string, len(node.Values))
	for i, v := range node.Values {
		values[i] = pq.QuoteLiteral(v)
	}
	r.Statementf("CREATE TYPE %s AS ENUM (%s)", r.Quote(node.Name), strings.Join(values, ", "))
	return nil
}

// VisitAlterType renders one ALTER TYPE statement per operation
func (r *Renderer) VisitAlterType(node *ast.AlterTypeNode) error {
	for _, op := range node.Operations {
		switch op := op.(type) {
		case *ast.RenameTypeOperation:
			r.Statementf("ALTER TYPE %s RENAME TO %s", r.Quote(node.Name), r.Quote(op.NewName))
		default:
			return fmt.Errorf("unknown alter type operation %T", op)
		}
	}
	return nil
}

// VisitDropType renders DROP TYPE
func (r *Renderer) VisitDropType(node *ast.DropTypeNode) error {
	ifExists := ""
	if node.IfExists {
		ifExists = "IF EXISTS "
	}
	r.Statementf("DROP TYPE %s%s", ifExists, r.Quote(node.Name))
	return nil
}
