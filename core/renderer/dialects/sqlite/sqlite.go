// Package sqlite renders AST nodes as SQLite statements.
package sqlite

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

// Renderer provides SQLite-specific SQL rendering
type Renderer struct {
	*base.Renderer
}

// New creates a new SQLite renderer
func New() *Renderer {
	w := &bufwriter.Writer{}
	return &Renderer{
		Renderer: base.New("sqlite", w, base.Options{
			QuoteIdent: QuoteIdentifier,
			// Only valid on an INTEGER PRIMARY KEY column.
			AutoIncrement: "AUTOINCREMENT",
		}),
	}
}

// QuoteIdentifier quotes a SQLite identifier with double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Render renders an AST node to SQL and returns the result
func (r *Renderer) Render(node ast.Node) (string, error) {
	return r.RenderWith(r, node)
}

// VisitAlterTable renders one ALTER TABLE statement per operation. SQLite only
// supports adding and dropping columns on existing tables.
func (r *Renderer) VisitAlterTable(node *ast.AlterTableNode) error {
	for _, op := range node.Operations {
		switch op.(type) {
		case *ast.AddColumnOperation, *ast.DropColumnOperation:
			clause, err := r.AlterOperation(op)
			if err != nil {
				return fmt.Errorf("failed to render alter table %q: %w", node.Name, err)
			}
			r.Statementf("ALTER TABLE %s %s", r.Quote(node.Name), clause)
		default:
			return fmt.Errorf("failed to render alter table %q: %w", node.Name, r.Unsupported(base.OperationName(op)))
		}
	}
	return nil
}
