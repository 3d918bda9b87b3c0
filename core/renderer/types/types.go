// Package types declares the interface shared by the dialect renderers.
package types

import (
	"github.com/stokaro/schemapush/core/ast"
)

// RenderVisitor is an ast.Visitor that accumulates the SQL of the nodes it
// visits.
//
// Statements are separated by ";\n"; the last statement carries no
// terminator, so a single node renders to exactly one statement text.
type RenderVisitor interface {
	ast.Visitor

	// Render resets the renderer, renders node and returns the SQL.
	Render(node ast.Node) (string, error)
	// Dialect returns the dialect name, e.g. "postgres".
	Dialect() string
	// Reset discards the accumulated output.
	Reset()
	// Output returns the SQL accumulated since the last Reset.
	Output() string
}
