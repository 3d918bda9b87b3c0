package ast

// CreateTableNode is a CREATE TABLE statement. Indexes are not part of it: the
// planners emit them as separate IndexNode statements.
type CreateTableNode struct {
	Name        string
	Columns     []*ColumnNode
	Constraints []*ConstraintNode
	// Options holds table options such as MySQL's ENGINE.
	Options map[string]string
}

func NewCreateTable(name string) *CreateTableNode {
	return &CreateTableNode{
		Name:        name,
		Columns:     make([]*ColumnNode, 0),
		Constraints: make([]*ConstraintNode, 0),
		Options:     make(map[string]string),
	}
}

func (n *CreateTableNode) Accept(visitor Visitor) error {
	return visitor.VisitCreateTable(n)
}

func (n *CreateTableNode) AddColumn(column *ColumnNode) *CreateTableNode {
	n.Columns = append(n.Columns, column)
	return n
}

func (n *CreateTableNode) AddConstraint(constraint *ConstraintNode) *CreateTableNode {
	n.Constraints = append(n.Constraints, constraint)
	return n
}

func (n *CreateTableNode) SetOption(key, value string) *CreateTableNode {
	n.Options[key] = value
	return n
}

// ColumnNode is a column definition. Type is the SQL type of the target
// dialect, e.g. VARCHAR(191) or "CatMood".
type ColumnNode struct {
	Name     string
	Type     string
	Nullable bool
	// Primary declares a single-column primary key inline. SQLite needs this
	// form for AUTOINCREMENT.
	Primary bool
	AutoInc bool
	Default *DefaultValue
}

// DefaultValue holds either a literal, already quoted for the dialect, or an
// expression that is rendered as is.
type DefaultValue struct {
	Value      string
	Expression string
}

// NewColumn returns a nullable column.
func NewColumn(name, dataType string) *ColumnNode {
	return &ColumnNode{Name: name, Type: dataType, Nullable: true}
}

func (n *ColumnNode) Accept(visitor Visitor) error {
	return visitor.VisitColumn(n)
}

// SetPrimary also makes the column NOT NULL.
func (n *ColumnNode) SetPrimary() *ColumnNode {
	n.Primary = true
	n.Nullable = false
	return n
}

func (n *ColumnNode) SetNotNull() *ColumnNode {
	n.Nullable = false
	return n
}

func (n *ColumnNode) SetAutoIncrement() *ColumnNode {
	n.AutoInc = true
	return n
}

func (n *ColumnNode) SetDefault(literal string) *ColumnNode {
	n.Default = &DefaultValue{Value: literal}
	return n
}

func (n *ColumnNode) SetDefaultExpression(expr string) *ColumnNode {
	n.Default = &DefaultValue{Expression: expr}
	return n
}

// ConstraintType tells primary keys and foreign keys apart.
type ConstraintType int

const (
	PrimaryKeyConstraint ConstraintType = iota
	ForeignKeyConstraint
)

// ForeignKeyRef is the REFERENCES clause of a foreign key. Empty actions are
// left out of the rendered SQL.
type ForeignKeyRef struct {
	Table    string
	Columns  []string
	OnDelete string
	OnUpdate string
}

// ConstraintNode is a table-level constraint. Reference is only set for
// foreign keys.
type ConstraintNode struct {
	Type      ConstraintType
	Name      string
	Columns   []string
	Reference *ForeignKeyRef
}

// NewPrimaryKeyConstraint returns an unnamed PRIMARY KEY (columns...) clause.
func NewPrimaryKeyConstraint(columns ...string) *ConstraintNode {
	return &ConstraintNode{Type: PrimaryKeyConstraint, Columns: columns}
}

// NewForeignKeyConstraint returns a named foreign key on columns.
func NewForeignKeyConstraint(name string, columns []string, ref *ForeignKeyRef) *ConstraintNode {
	return &ConstraintNode{Type: ForeignKeyConstraint, Name: name, Columns: columns, Reference: ref}
}

func (n *ConstraintNode) Accept(visitor Visitor) error {
	return visitor.VisitConstraint(n)
}

// DropTableNode is a DROP TABLE statement. Cascade is only rendered by
// PostgreSQL.
type DropTableNode struct {
	Name     string
	IfExists bool
	Cascade  bool
}

func NewDropTable(name string) *DropTableNode {
	return &DropTableNode{Name: name}
}

func (n *DropTableNode) SetIfExists() *DropTableNode {
	n.IfExists = true
	return n
}

func (n *DropTableNode) SetCascade() *DropTableNode {
	n.Cascade = true
	return n
}

func (n *DropTableNode) Accept(visitor Visitor) error {
	return visitor.VisitDropTable(n)
}
