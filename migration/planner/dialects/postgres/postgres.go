package postgres

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner/dialects/internal/plan"
	"github.com/stokaro/schemapush/migration/steps"
)

const (
	// DialectName is the PostgreSQL dialect identifier
	DialectName = "postgres"

	// DefaultDecimalPrecision and DefaultDecimalScale apply to a Decimal declared
	// without them.
	DefaultDecimalPrecision = 65
	DefaultDecimalScale     = 30
)

// Planner implements PostgreSQL-specific migration planning functionality.
//
// The Planner converts migration steps into PostgreSQL AST nodes that the
// PostgreSQL renderer turns into executable SQL statements. It handles
// PostgreSQL-specific features like named ENUM types, identity columns and
// transactional foreign key changes.
//
// # Usage Example
//
//	planner := postgres.New()
//
//	nodes, err := planner.Plan(steps.CreateEnum{
//		Enum: schema.Enum{Name: "CatMood", Variants: []string{"HAPPY", "HUNGRY"}},
//	})
//
// # Enum variant changes
//
// PostgreSQL cannot drop a value from an enum type or reorder its values, and a
// value added with ALTER TYPE ... ADD VALUE cannot be used before the
// transaction commits. Every variant step therefore renames the type, create it again with the new
// variant list, cast every column using it and drop the renamed type. Column
// defaults are dropped around the cast and restored when the variant they
// name survives.
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
		return p.createTable(s.Table), nil

	case steps.DropTable:
		return []ast.Node{ast.NewDropTable(s.Table.Name)}, nil

	case steps.AddColumn:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.AddColumnOperation{Column: p.column(s.Column)})}, nil

	case steps.DropColumn:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.DropColumnOperation{ColumnName: s.Column.Name})}, nil

	case steps.AlterColumn:
		return p.alterColumn(s), nil

	case steps.AlterPrimaryKey:
		return []ast.Node{p.alterPrimaryKey(s)}, nil

	case steps.CreateEnum:
		return []ast.Node{ast.NewEnum(s.Enum.Name, s.Enum.Variants...)}, nil

	case steps.DropEnum:
		return []ast.Node{ast.NewDropType(s.Enum.Name)}, nil

	case steps.AddEnumVariant:
		return p.recreateEnum(s.Enum, s.Variants, s.Usages), nil

	case steps.RemoveEnumVariant:
		return p.recreateEnum(s.Enum, s.Variants, s.Usages), nil

	case steps.ReorderEnumVariants:
		return p.recreateEnum(s.Enum, s.Variants, s.Usages), nil

	case steps.AddForeignKey:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.AddConstraintOperation{Constraint: plan.ForeignKey(s.Table, s.ForeignKey)})}, nil

	case steps.DropForeignKey:
		// Also emitted for tables about to be dropped, so that tables referencing
		// each other can be dropped in any order.
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.DropConstraintOperation{Name: schema.ForeignKeyName(s.Table, s.ForeignKey)})}, nil

	case steps.CreateIndex:
		return []ast.Node{plan.Index(s.Table, s.Index)}, nil

	case steps.DropIndex:
		return []ast.Node{ast.NewDropIndex(schema.IndexName(s.Table, s.Index)).SetTable(s.Table)}, nil

	default:
		return nil, fmt.Errorf("unexpected step type %T", s)
	}
}

func (p *Planner) createTable(t schema.Table) []ast.Node {
	node := ast.NewCreateTable(t.Name)
	for _, col := range t.Columns {
		node.AddColumn(p.column(col))
	}
	if len(t.PrimaryKey) > 0 {
		pk := ast.NewPrimaryKeyConstraint(t.PrimaryKey...)
		pk.Name = t.Name + "_pkey"
		node.AddConstraint(pk)
	}

	result := []ast.Node{node}
	for _, idx := range t.Indexes {
		result = append(result, plan.Index(t.Name, idx))
	}
	return result
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

// alterColumn changes a column with at most two ALTER TABLE statements: the
// first changes the type, the second the nullability and default. A backfill of
// NULLs with the new default runs between them when the column becomes required.
func (p *Planner) alterColumn(s steps.AlterColumn) []ast.Node {
	prev, next := s.Previous, s.Next
	typeChanged := s.HasChange(schema.ChangeType)

	var first, second []ast.AlterOperation
	if typeChanged {
		if prev.Default != nil {
			first = append(first, &ast.AlterColumnDefaultOperation{ColumnName: next.Name})
		}
		first = append(first, &ast.AlterColumnTypeOperation{
			ColumnName: next.Name,
			Type:       ColumnType(next.Type),
			Using:      castExpression(next.Name, prev.Type, next.Type),
		})
	}
	if s.HasChange(schema.ChangeAutoIncrement) && !next.AutoIncrement {
		first = append(first, &ast.AlterColumnIdentityOperation{ColumnName: next.Name})
	}

	var backfill ast.Node
	if s.HasChange(schema.ChangeNullability) {
		if !next.Nullable && next.Default != nil {
			backfill = ast.NewBackfill(s.Table, next.Name, DefaultValue(next.Type, next.Default))
		}
		second = append(second, &ast.AlterColumnNullOperation{ColumnName: next.Name, NotNull: !next.Nullable})
	}
	switch {
	case next.Default != nil && (s.HasChange(schema.ChangeDefault) || typeChanged):
		second = append(second, &ast.AlterColumnDefaultOperation{ColumnName: next.Name, Default: DefaultValue(next.Type, next.Default)})
	case next.Default == nil && s.HasChange(schema.ChangeDefault) && !(typeChanged && prev.Default != nil):
		second = append(second, &ast.AlterColumnDefaultOperation{ColumnName: next.Name})
	}
	if s.HasChange(schema.ChangeAutoIncrement) && next.AutoIncrement {
		second = append(second, &ast.AlterColumnIdentityOperation{ColumnName: next.Name, Add: true})
	}

	if backfill == nil {
		ops := append(first, second...)
		if len(ops) == 0 {
			return nil
		}
		return []ast.Node{ast.NewAlterTable(s.Table, ops...)}
	}
	var result []ast.Node
	if len(first) > 0 {
		result = append(result, ast.NewAlterTable(s.Table, first...))
	}
	result = append(result, backfill, ast.NewAlterTable(s.Table, second...))
	return result
}

// castExpression converts the stored values of a column to a new type. Enum
// values go through text, since PostgreSQL has no direct cast between enums
// and other types.
func castExpression(column string, from, to schema.ColumnType) string {
	col := pq.QuoteIdentifier(column)
	if from.IsEnum() || to.IsEnum() {
		return fmt.Sprintf("%s::text::%s", col, ColumnType(to))
	}
	return fmt.Sprintf("%s::%s", col, ColumnType(to))
}

// alterPrimaryKey swaps the key in one statement. The constraint is expected
// under the default <table>_pkey name, which createTable also uses.
func (p *Planner) alterPrimaryKey(s steps.AlterPrimaryKey) ast.Node {
	name := s.Table + "_pkey"
	var ops []ast.AlterOperation
	if len(s.Previous) > 0 {
		ops = append(ops, &ast.DropPrimaryKeyOperation{Name: name})
	}
	if len(s.Next) > 0 {
		pk := ast.NewPrimaryKeyConstraint(s.Next...)
		pk.Name = name
		ops = append(ops, &ast.AddConstraintOperation{Constraint: pk})
	}
	return ast.NewAlterTable(s.Table, ops...)
}

func (p *Planner) recreateEnum(enum string, variants []string, usages []schema.EnumUsage) []ast.Node {
	old := enum + "_old"
	result := []ast.Node{
		ast.NewAlterType(enum).AddOperation(ast.NewRenameTypeOperation(old)),
		ast.NewEnum(enum, variants...),
	}
	enumType := schema.EnumType(enum)
	for _, u := range usages {
		col := u.Column
		if col.Default != nil {
			result = append(result, ast.NewAlterTable(u.Table, &ast.AlterColumnDefaultOperation{ColumnName: col.Name}))
		}
		result = append(result, ast.NewAlterTable(u.Table, &ast.AlterColumnTypeOperation{
			ColumnName: col.Name,
			Type:       ColumnType(enumType),
			Using:      castExpression(col.Name, col.Type, enumType),
		}))
		if col.Default != nil && (col.Default.Kind != schema.DefaultEnumVariant || slices.Contains(variants, col.Default.Value)) {
			result = append(result, ast.NewAlterTable(u.Table, &ast.AlterColumnDefaultOperation{
				ColumnName: col.Name,
				Default:    DefaultValue(enumType, col.Default),
			}))
		}
	}
	return append(result, ast.NewDropType(old))
}

// ColumnType returns the PostgreSQL type of a logical column type.
func ColumnType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindDecimal:
		if t.Precision == 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", DefaultDecimalPrecision, DefaultDecimalScale)
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
		return "TIMESTAMP(3)"
	case schema.KindJSON:
		return "JSONB"
	case schema.KindBytes:
		return "BYTEA"
	case schema.KindEnum:
		return pq.QuoteIdentifier(t.EnumName)
	default:
		return strings.ToUpper(t.String())
	}
}

// DefaultValue renders a column default for a column of type t.
//
// The expression now() is written as CURRENT_TIMESTAMP; other expressions are
// function calls without arguments.
func DefaultValue(t schema.ColumnType, d *schema.DefaultValue) *ast.DefaultValue {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case schema.DefaultExpression:
		if strings.EqualFold(d.Value, "now") {
			return &ast.DefaultValue{Expression: "CURRENT_TIMESTAMP"}
		}
		return &ast.DefaultValue{Expression: d.Value + "()"}
	case schema.DefaultEnumVariant:
		return &ast.DefaultValue{Value: pq.QuoteLiteral(d.Value)}
	}
	switch {
	case plan.IsNumeric(t.Kind):
		return &ast.DefaultValue{Value: d.Value}
	case t.Kind == schema.KindBoolean:
		if schema.IsTrue(d.Value) {
			return &ast.DefaultValue{Value: "true"}
		}
		return &ast.DefaultValue{Value: "false"}
	default:
		return &ast.DefaultValue{Value: pq.QuoteLiteral(d.Value)}
	}
}
