package sqlite

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner/dialects/internal/plan"
	"github.com/stokaro/schemapush/migration/steps"
)

// DialectName is the SQLite dialect identifier
const DialectName = "sqlite"

// Planner implements SQLite-specific migration planning functionality.
//
// SQLite cannot change a column or a constraint of an existing table, so the
// Planner only supports steps that SQLite's ALTER TABLE can express:
//
//   - foreign keys are declared inline when their table is created, and
//     dropped together with their table
//   - added columns must be nullable or carry a constant default
//   - column alterations, primary key changes and enums are not supported (enum columns are
//     expected to be stored as strings, see connector.EnumsAsStrings)
//
// Everything else fails with an error wrapping connector.ErrUnsupported.
//
// # Thread Safety
//
// The Planner is stateless and safe for concurrent use across multiple goroutines.
type Planner struct {
}

func New() *Planner {
	return &Planner{}
}

// Plan converts one step into the AST nodes performing it.
func (p *Planner) Plan(s steps.Step) ([]ast.Node, error) {
	switch s := s.(type) {
	case steps.CreateTable:
		return p.createTable(s.Table)

	case steps.DropTable:
		return []ast.Node{ast.NewDropTable(s.Table.Name)}, nil

	case steps.AddColumn:
		return p.addColumn(s)

	case steps.DropColumn:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.DropColumnOperation{ColumnName: s.Column.Name})}, nil

	case steps.AlterColumn:
		return nil, plan.Unsupported(DialectName, "altering column %s.%s", s.Table, s.Next.Name)

	case steps.AlterPrimaryKey:
		return nil, plan.Unsupported(DialectName, "changing the primary key of table %s", s.Table)

	case steps.CreateEnum, steps.DropEnum, steps.AddEnumVariant, steps.RemoveEnumVariant, steps.ReorderEnumVariants:
		return nil, plan.Unsupported(DialectName, "%s", s)

	case steps.AddForeignKey:
		if s.NewTable {
			// Declared by CREATE TABLE.
			return nil, nil
		}
		return nil, plan.Unsupported(DialectName, "adding a foreign key to existing table %s", s.Table)

	case steps.DropForeignKey:
		if s.TableDropped {
			return nil, nil
		}
		return nil, plan.Unsupported(DialectName, "dropping a foreign key from table %s", s.Table)

	case steps.CreateIndex:
		return []ast.Node{plan.Index(s.Table, s.Index)}, nil

	case steps.DropIndex:
		return []ast.Node{ast.NewDropIndex(schema.IndexName(s.Table, s.Index))}, nil

	default:
		return nil, fmt.Errorf("unexpected step type %T", s)
	}
}

func (p *Planner) createTable(t schema.Table) ([]ast.Node, error) {
	node := ast.NewCreateTable(t.Name)
	pk, single := plan.SinglePrimaryKey(t)
	inlinePK := false
	for _, col := range t.Columns {
		c := p.column(col)
		if col.AutoIncrement {
			if !single || pk != col.Name {
				return nil, plan.Unsupported(DialectName, "autoincrement column %s.%s outside a single column primary key", t.Name, col.Name)
			}
			c.Type = "INTEGER"
			c.SetPrimary()
			inlinePK = true
		}
		node.AddColumn(c)
	}
	if len(t.PrimaryKey) > 0 && !inlinePK {
		node.AddConstraint(ast.NewPrimaryKeyConstraint(t.PrimaryKey...))
	}
	for _, fk := range t.ForeignKeys {
		node.AddConstraint(plan.ForeignKey(t.Name, fk))
	}

	result := []ast.Node{node}
	for _, idx := range t.Indexes {
		result = append(result, plan.Index(t.Name, idx))
	}
	return result, nil
}

func (p *Planner) addColumn(s steps.AddColumn) ([]ast.Node, error) {
	col := s.Column
	switch {
	case !col.Nullable && col.Default == nil:
		return nil, plan.Unsupported(DialectName, "adding required column %s.%s without a default", s.Table, col.Name)
	case col.Default != nil && col.Default.Kind == schema.DefaultExpression:
		return nil, plan.Unsupported(DialectName, "adding column %s.%s with a non-constant default", s.Table, col.Name)
	case col.AutoIncrement:
		return nil, plan.Unsupported(DialectName, "adding autoincrement column %s.%s", s.Table, col.Name)
	}
	return []ast.Node{ast.NewAlterTable(s.Table, &ast.AddColumnOperation{Column: p.column(col)})}, nil
}

func (p *Planner) column(col schema.Column) *ast.ColumnNode {
	node := ast.NewColumn(col.Name, ColumnType(col.Type))
	if !col.Nullable {
		node.SetNotNull()
	}
	if col.AutoIncrement {
		node.SetAutoIncrement()
	}
	node.Default = DefaultValue(col.Type, col.Default)
	return node
}

// ColumnType returns the SQLite type of a logical column type. The names are
// chosen so that SQLite's type affinity rules store each kind sensibly and
// introspection can map them back.
func ColumnType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "REAL"
	case schema.KindDecimal:
		if t.Precision == 0 {
			return "DECIMAL"
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.KindString:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "TEXT"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDateTime:
		return "DATETIME"
	case schema.KindJSON:
		return "JSON"
	case schema.KindBytes:
		return "BLOB"
	default:
		return strings.ToUpper(t.String())
	}
}

// DefaultValue renders a column default for a column of type t.
func DefaultValue(t schema.ColumnType, d *schema.DefaultValue) *ast.DefaultValue {
	if d == nil {
		return nil
	}
	if d.Kind == schema.DefaultExpression {
		if strings.EqualFold(d.Value, "now") {
			return &ast.DefaultValue{Expression: "CURRENT_TIMESTAMP"}
		}
		return &ast.DefaultValue{Expression: "(" + d.Value + "())"}
	}
	switch {
	case d.Kind == schema.DefaultLiteral && plan.IsNumeric(t.Kind):
		return &ast.DefaultValue{Value: d.Value}
	case d.Kind == schema.DefaultLiteral && t.Kind == schema.KindBoolean:
		if schema.IsTrue(d.Value) {
			return &ast.DefaultValue{Value: "TRUE"}
		}
		return &ast.DefaultValue{Value: "FALSE"}
	default:
		return &ast.DefaultValue{Value: plan.QuoteString(d.Value)}
	}
}
