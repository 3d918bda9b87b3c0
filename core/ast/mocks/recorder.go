// Package mocks provides test doubles for the ast package.
package mocks

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemapush/core/ast"
)

var _ ast.Visitor = (*Recorder)(nil)

// Recorder is an ast.Visitor that records a "Kind:name" entry for every node
// it visits. When Err is set, every visit records its entry and returns Err.
type Recorder struct {
	Visited []string
	Err     error
}

func (r *Recorder) record(kind string, name ...string) error {
	r.Visited = append(r.Visited, fmt.Sprintf("%s:%s", kind, strings.Join(name, ".")))
	return r.Err
}

func (r *Recorder) VisitCreateTable(n *ast.CreateTableNode) error {
	return r.record("CreateTable", n.Name)
}

func (r *Recorder) VisitAlterTable(n *ast.AlterTableNode) error {
	return r.record("AlterTable", n.Name)
}

func (r *Recorder) VisitColumn(n *ast.ColumnNode) error {
	return r.record("Column", n.Name)
}

func (r *Recorder) VisitConstraint(n *ast.ConstraintNode) error {
	return r.record("Constraint", n.Name)
}

func (r *Recorder) VisitIndex(n *ast.IndexNode) error {
	return r.record("Index", n.Name)
}

func (r *Recorder) VisitDropIndex(n *ast.DropIndexNode) error {
	return r.record("DropIndex", n.Name)
}

func (r *Recorder) VisitDropTable(n *ast.DropTableNode) error {
	return r.record("DropTable", n.Name)
}

func (r *Recorder) VisitEnum(n *ast.EnumNode) error {
	return r.record("Enum", n.Name)
}

func (r *Recorder) VisitAlterType(n *ast.AlterTypeNode) error {
	return r.record("AlterType", n.Name)
}

func (r *Recorder) VisitDropType(n *ast.DropTypeNode) error {
	return r.record("DropType", n.Name)
}

func (r *Recorder) VisitComment(n *ast.CommentNode) error {
	return r.record("Comment", n.Text)
}

func (r *Recorder) VisitBackfill(n *ast.BackfillNode) error {
	return r.record("Backfill", n.Table, n.Column)
}
