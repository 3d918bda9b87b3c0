package ast

// IndexNode is a CREATE [UNIQUE] INDEX statement. A non-empty Condition makes
// the index partial.
type IndexNode struct {
	Name      string
	Table     string
	Columns   []string
	Unique    bool
	Condition string
}

func NewIndex(name, table string, columns ...string) *IndexNode {
	return &IndexNode{Name: name, Table: table, Columns: columns}
}

func (n *IndexNode) Accept(visitor Visitor) error {
	return visitor.VisitIndex(n)
}

func (n *IndexNode) SetUnique() *IndexNode {
	n.Unique = true
	return n
}

func (n *IndexNode) SetCondition(condition string) *IndexNode {
	n.Condition = condition
	return n
}

// DropIndexNode is a DROP INDEX statement. MySQL needs Table; the other
// dialects ignore it.
type DropIndexNode struct {
	Name     string
	Table    string
	IfExists bool
}

func NewDropIndex(name string) *DropIndexNode {
	return &DropIndexNode{Name: name}
}

func (n *DropIndexNode) SetTable(table string) *DropIndexNode {
	n.Table = table
	return n
}

func (n *DropIndexNode) SetIfExists() *DropIndexNode {
	n.IfExists = true
	return n
}

func (n *DropIndexNode) Accept(visitor Visitor) error {
	return visitor.VisitDropIndex(n)
}
