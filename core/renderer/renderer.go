// Package renderer turns AST nodes into executable SQL statements.
package renderer

import (
	"fmt"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/renderer/types"
	"github.com/stokaro/schemapush/core/sqlutil"
)

// Statements renders nodes with r and returns the individual statements, in
// order and without terminators. A node may render to several statements.
func Statements(r types.RenderVisitor, nodes ...ast.Node) ([]string, error) {
	var out []string
	for i, node := range nodes {
		sql, err := r.Render(node)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s node %d: %w", r.Dialect(), i+1, err)
		}
		out = append(out, sqlutil.SplitSQLStatements(sql)...)
	}
	return out, nil
}
