package ast

// The nodes in this file are only built for PostgreSQL, the one dialect with
// named enum types. MySQL and SQLite planners put enums into column types.

// EnumNode is CREATE TYPE name AS ENUM (values...).
type EnumNode struct {
	Name   string
	Values []string
}

func NewEnum(name string, values ...string) *EnumNode {
	return &EnumNode{Name: name, Values: values}
}

func (n *EnumNode) Accept(visitor Visitor) error {
	return visitor.VisitEnum(n)
}

// AlterTypeNode is an ALTER TYPE statement. Each operation is rendered as a
// statement of its own.
type AlterTypeNode struct {
	Name       string
	Operations []AlterTypeOperation
}

func NewAlterType(name string) *AlterTypeNode {
	return &AlterTypeNode{Name: name, Operations: make([]AlterTypeOperation, 0)}
}

func (n *AlterTypeNode) AddOperation(op AlterTypeOperation) *AlterTypeNode {
	n.Operations = append(n.Operations, op)
	return n
}

func (n *AlterTypeNode) Accept(visitor Visitor) error {
	return visitor.VisitAlterType(n)
}

type AlterTypeOperation interface {
	alterTypeOperation()
}

// RenameTypeOperation is ALTER TYPE ... RENAME TO NewName. Enum recreation
// uses it to move the old type out of the way.
type RenameTypeOperation struct {
	NewName string
}

func NewRenameTypeOperation(newName string) *RenameTypeOperation {
	return &RenameTypeOperation{NewName: newName}
}

func (*RenameTypeOperation) alterTypeOperation() {}

// DropTypeNode is a DROP TYPE statement.
type DropTypeNode struct {
	Name     string
	IfExists bool
}

func NewDropType(name string) *DropTypeNode {
	return &DropTypeNode{Name: name}
}

func (n *DropTypeNode) SetIfExists() *DropTypeNode {
	n.IfExists = true
	return n
}

func (n *DropTypeNode) Accept(visitor Visitor) error {
	return visitor.VisitDropType(n)
}
