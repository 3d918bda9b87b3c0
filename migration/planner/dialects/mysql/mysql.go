package mysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner/dialects/internal/plan"
	"github.com/stokaro/schemapush/migration/steps"
)

const (
	// DialectName is the MySQL dialect identifier
	DialectName = "mysql"

	// DefaultDecimalPrecision and DefaultDecimalScale apply to a Decimal declared
	// without them.
	DefaultDecimalPrecision = 65
	DefaultDecimalScale     = 30

	// DefaultCharset and DefaultCollation are the table options of created tables.
	DefaultCharset   = "utf8mb4"
	DefaultCollation = "utf8mb4_unicode_ci"
)

// Planner implements MySQL-specific migration planning functionality.
//
// MySQL has no named enum types: an enum is part of the column definition and
// every enum-typed column is expected to reference its own inline enum (see
// connector.InlineEnums). CreateEnum and DropEnum therefore produce no
// statements, while variant changes restate every column using the enum with
// MODIFY COLUMN.
//
// Tables are created with the InnoDB engine, the utf8mb4 charset and
// DefaultCollation.
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
		return p.createTable(s)

	case steps.DropTable:
		return []ast.Node{ast.NewDropTable(s.Table.Name)}, nil

	case steps.AddColumn:
		col, err := p.column(s.Column, s.Enum)
		if err != nil {
			return nil, fmt.Errorf("failed to plan column %s.%s: %w", s.Table, s.Column.Name, err)
		}
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.AddColumnOperation{Column: col})}, nil

	case steps.DropColumn:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.DropColumnOperation{ColumnName: s.Column.Name})}, nil

	case steps.AlterColumn:
		return p.alterColumn(s)

	case steps.AlterPrimaryKey:
		var ops []ast.AlterOperation
		if len(s.Previous) > 0 {
			ops = append(ops, &ast.DropPrimaryKeyOperation{})
		}
		if len(s.Next) > 0 {
			ops = append(ops, &ast.AddConstraintOperation{Constraint: ast.NewPrimaryKeyConstraint(s.Next...)})
		}
		return []ast.Node{ast.NewAlterTable(s.Table, ops...)}, nil

	case steps.CreateEnum, steps.DropEnum:
		return nil, nil

	case steps.AddEnumVariant:
		return p.modifyEnumColumns(s.Enum, s.Variants, s.Usages)

	case steps.RemoveEnumVariant:
		return p.modifyEnumColumns(s.Enum, s.Variants, s.Usages)

	case steps.ReorderEnumVariants:
		return p.modifyEnumColumns(s.Enum, s.Variants, s.Usages)

	case steps.AddForeignKey:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.AddConstraintOperation{Constraint: plan.ForeignKey(s.Table, s.ForeignKey)})}, nil

	case steps.DropForeignKey:
		return []ast.Node{ast.NewAlterTable(s.Table, &ast.DropConstraintOperation{
			Name:       schema.ForeignKeyName(s.Table, s.ForeignKey),
			ForeignKey: true,
		})}, nil

	case steps.CreateIndex:
		return []ast.Node{plan.Index(s.Table, s.Index)}, nil

	case steps.DropIndex:
		return []ast.Node{ast.NewDropIndex(schema.IndexName(s.Table, s.Index)).SetTable(s.Table)}, nil

	default:
		return nil, fmt.Errorf("unexpected step type %T", s)
	}
}

func (p *Planner) createTable(s steps.CreateTable) ([]ast.Node, error) {
	t := s.Table
	node := ast.NewCreateTable(t.Name).
		SetOption("ENGINE", "InnoDB").
		SetOption("DEFAULT CHARSET", DefaultCharset).
		SetOption("COLLATE", DefaultCollation)

	for _, col := range t.Columns {
		var enum *schema.Enum
		if col.Type.IsEnum() {
			enum = findEnum(s.Enums, col.Type.EnumName)
		}
		c, err := p.column(col, enum)
		if err != nil {
			return nil, fmt.Errorf("failed to plan table %s: %w", t.Name, err)
		}
		node.AddColumn(c)
	}
	if len(t.PrimaryKey) > 0 {
		node.AddConstraint(ast.NewPrimaryKeyConstraint(t.PrimaryKey...))
	}

	result := []ast.Node{node}
	for _, idx := range t.Indexes {
		result = append(result, plan.Index(t.Name, idx))
	}
	return result, nil
}

func findEnum(enums []schema.Enum, name string) *schema.Enum {
	for i := range enums {
		if enums[i].Name == name {
			return &enums[i]
		}
	}
	return nil
}

func (p *Planner) column(col schema.Column, enum *schema.Enum) (*ast.ColumnNode, error) {
	var typ string
	if col.Type.IsEnum() {
		if enum == nil {
			return nil, fmt.Errorf("missing definition of enum %q", col.Type.EnumName)
		}
		typ = EnumType(enum.Variants)
	} else {
		typ = ColumnType(col.Type)
	}

	node := ast.NewColumn(col.Name, typ)
	if !col.Nullable {
		node.SetNotNull()
	}
	if col.AutoIncrement {
		node.SetAutoIncrement()
	}
	node.Default = DefaultValue(col.Type, col.Default)
	return node, nil
}

// alterColumn restates the column with MODIFY COLUMN. NULLs are replaced with
// the new default first when the column becomes required.
func (p *Planner) alterColumn(s steps.AlterColumn) ([]ast.Node, error) {
	col, err := p.column(s.Next, s.Enum)
	if err != nil {
		return nil, fmt.Errorf("failed to plan column %s.%s: %w", s.Table, s.Next.Name, err)
	}

	var result []ast.Node
	if s.HasChange(schema.ChangeNullability) && !s.Next.Nullable && s.Next.Default != nil {
		result = append(result, ast.NewBackfill(s.Table, s.Next.Name, DefaultValue(s.Next.Type, s.Next.Default)))
	}
	return append(result, ast.NewAlterTable(s.Table, &ast.ModifyColumnOperation{Column: col})), nil
}

// modifyEnumColumns restates every column using an enum with the new variant
// list. A default naming a variant that no longer exists is dropped.
func (p *Planner) modifyEnumColumns(enum string, variants []string, usages []schema.EnumUsage) ([]ast.Node, error) {
	def := &schema.Enum{Name: enum, Variants: variants}
	result := make([]ast.Node, 0, len(usages))
	for _, u := range usages {
		col := u.Column.Clone()
		if col.Default != nil && col.Default.Kind == schema.DefaultEnumVariant && !slices.Contains(variants, col.Default.Value) {
			col.Default = nil
		}
		node, err := p.column(col, def)
		if err != nil {
			return nil, fmt.Errorf("failed to plan column %s.%s: %w", u.Table, col.Name, err)
		}
		result = append(result, ast.NewAlterTable(u.Table, &ast.ModifyColumnOperation{Column: node}))
	}
	return result, nil
}

// ColumnType returns the MySQL type of a logical column type. Enum columns are
// rendered with EnumType.
func ColumnType(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindInt:
		return "INT"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindFloat:
		return "DOUBLE"
	case schema.KindDecimal:
		if t.Precision == 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", DefaultDecimalPrecision, DefaultDecimalScale)
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.KindString:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "LONGTEXT"
	case schema.KindBoolean:
		return "TINYINT(1)"
	case schema.KindDateTime:
		return "DATETIME(3)"
	case schema.KindJSON:
		return "JSON"
	case schema.KindBytes:
		return "LONGBLOB"
	default:
		return strings.ToUpper(t.String())
	}
}

// EnumType returns the inline ENUM type with the given variants.
func EnumType(variants []string) string {
	quoted := make([]string, len(variants))
	for i, v := range variants {
		quoted[i] = QuoteString(v)
	}
	return "ENUM(" + strings.Join(quoted, ",") + ")"
}

// QuoteString quotes a string literal, escaping backslashes as well since MySQL
// treats them as escape characters by default.
func QuoteString(v string) string {
	return plan.QuoteString(strings.ReplaceAll(v, `\`, `\\`))
}

// DefaultValue renders a column default for a column of type t.
//
// MySQL only accepts literal defaults for TEXT, JSON and BLOB columns when they
// are written as expressions, so those are wrapped in parentheses.
func DefaultValue(t schema.ColumnType, d *schema.DefaultValue) *ast.DefaultValue {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case schema.DefaultExpression:
		if strings.EqualFold(d.Value, "now") {
			return &ast.DefaultValue{Expression: "CURRENT_TIMESTAMP(3)"}
		}
		return &ast.DefaultValue{Expression: "(" + d.Value + "())"}
	case schema.DefaultEnumVariant:
		return &ast.DefaultValue{Value: QuoteString(d.Value)}
	}
	switch {
	case plan.IsNumeric(t.Kind):
		return &ast.DefaultValue{Value: d.Value}
	case t.Kind == schema.KindBoolean:
		if schema.IsTrue(d.Value) {
			return &ast.DefaultValue{Value: "1"}
		}
		return &ast.DefaultValue{Value: "0"}
	case t.Kind == schema.KindJSON || t.Kind == schema.KindBytes || (t.Kind == schema.KindString && t.Length == 0):
		return &ast.DefaultValue{Expression: "(" + QuoteString(d.Value) + ")"}
	default:
		return &ast.DefaultValue{Value: QuoteString(d.Value)}
	}
}
