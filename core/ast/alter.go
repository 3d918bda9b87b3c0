package ast

// AlterTableNode represents ALTER TABLE statements with one or more operations.
//
// This node can contain multiple operations like adding columns, dropping columns,
// or modifying existing columns. Each operation is represented by a specific
// AlterOperation implementation. Renderers emit all operations in one statement.
type AlterTableNode struct {
	// Name is the name of the table to alter
	Name string
	// Operations contains the list of operations to perform on the table
	Operations []AlterOperation
}

// NewAlterTable creates an ALTER TABLE node with the given operations.
//
// Example:
//
//	alter := NewAlterTable("Cat", &DropColumnOperation{ColumnName: "age"})
func NewAlterTable(name string, ops ...AlterOperation) *AlterTableNode {
	return &AlterTableNode{Name: name, Operations: ops}
}

// Accept implements the Node interface for AlterTableNode.
func (n *AlterTableNode) Accept(visitor Visitor) error {
	return visitor.VisitAlterTable(n)
}

// AlterOperation is one clause of an ALTER TABLE statement.
type AlterOperation interface {
	alterOperation()
}

// AddColumnOperation represents ADD COLUMN.
type AddColumnOperation struct {
	Column *ColumnNode
}

// DropColumnOperation represents DROP COLUMN.
type DropColumnOperation struct {
	ColumnName string
}

// ModifyColumnOperation represents MySQL's MODIFY COLUMN, which restates the
// whole column definition.
type ModifyColumnOperation struct {
	Column *ColumnNode
}

// AlterColumnTypeOperation represents ALTER COLUMN ... TYPE, with an optional
// USING conversion expression.
type AlterColumnTypeOperation struct {
	ColumnName string
	Type       string
	Using      string
}

// AlterColumnNullOperation represents ALTER COLUMN ... SET NOT NULL or DROP NOT NULL.
type AlterColumnNullOperation struct {
	ColumnName string
	NotNull    bool
}

// AlterColumnDefaultOperation represents ALTER COLUMN ... SET DEFAULT, or DROP
// DEFAULT when Default is nil.
type AlterColumnDefaultOperation struct {
	ColumnName string
	Default    *DefaultValue
}

// AlterColumnIdentityOperation represents PostgreSQL's ALTER COLUMN ... ADD
// GENERATED BY DEFAULT AS IDENTITY, or DROP IDENTITY when Add is false.
type AlterColumnIdentityOperation struct {
	ColumnName string
	Add        bool
}

// AddConstraintOperation represents ADD CONSTRAINT.
type AddConstraintOperation struct {
	Constraint *ConstraintNode
}

// DropConstraintOperation represents DROP CONSTRAINT, or MySQL's DROP FOREIGN
// KEY when ForeignKey is set.
type DropConstraintOperation struct {
	Name       string
	ForeignKey bool
}

// DropPrimaryKeyOperation drops the primary key of the table. Name is the
// constraint name for dialects that drop the key by name.
type DropPrimaryKeyOperation struct {
	Name string
}

func (*AddColumnOperation) alterOperation()           {}
func (*DropColumnOperation) alterOperation()          {}
func (*ModifyColumnOperation) alterOperation()        {}
func (*AlterColumnTypeOperation) alterOperation()     {}
func (*AlterColumnNullOperation) alterOperation()     {}
func (*AlterColumnDefaultOperation) alterOperation()  {}
func (*AlterColumnIdentityOperation) alterOperation() {}
func (*AddConstraintOperation) alterOperation()       {}
func (*DropConstraintOperation) alterOperation()      {}
func (*DropPrimaryKeyOperation) alterOperation()      {}
