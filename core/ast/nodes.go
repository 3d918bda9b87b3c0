// Package ast defines the SQL statement tree the dialect planners build from
// migration steps and the dialect renderers turn into SQL text.
//
// Every node renders to exactly one SQL statement, except CommentNode, which
// renders to a comment line, and StatementList, which renders its children in
// order.
package ast

import (
	"fmt"
)

// Node is a statement, or part of one, that a Visitor can render.
type Node interface {
	Accept(visitor Visitor) error
}

// CommentNode renders as a SQL comment line.
type CommentNode struct {
	Text string
}

func NewComment(text string) *CommentNode {
	return &CommentNode{Text: text}
}

func (n *CommentNode) Accept(visitor Visitor) error {
	return visitor.VisitComment(n)
}

// BackfillNode replaces the NULL values of a column before the column becomes
// required:
//
//	UPDATE "Cat" SET "name" = 'Tom' WHERE "name" IS NULL
type BackfillNode struct {
	Table  string
	Column string
	// Value is rendered the way a column default is.
	Value *DefaultValue
}

func NewBackfill(table, column string, value *DefaultValue) *BackfillNode {
	return &BackfillNode{Table: table, Column: column, Value: value}
}

func (n *BackfillNode) Accept(visitor Visitor) error {
	return visitor.VisitBackfill(n)
}

// StatementList renders its statements in order and stops at the first error.
type StatementList struct {
	Statements []Node
}

func (sl *StatementList) Accept(visitor Visitor) error {
	for _, stmt := range sl.Statements {
		if err := stmt.Accept(visitor); err != nil {
			return fmt.Errorf("error visiting statement: %w", err)
		}
	}
	return nil
}
