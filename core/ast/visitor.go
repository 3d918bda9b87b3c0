package ast

// Visitor is implemented by the dialect renderers. Each method renders one
// node type.
type Visitor interface {
	VisitCreateTable(node *CreateTableNode) error
	VisitAlterTable(node *AlterTableNode) error
	VisitColumn(node *ColumnNode) error
	VisitConstraint(node *ConstraintNode) error
	VisitIndex(node *IndexNode) error
	VisitDropIndex(node *DropIndexNode) error
	VisitDropTable(node *DropTableNode) error
	VisitEnum(node *EnumNode) error
	VisitAlterType(node *AlterTypeNode) error
	VisitDropType(node *DropTypeNode) error
	VisitBackfill(node *BackfillNode) error
	VisitComment(node *CommentNode) error
}
