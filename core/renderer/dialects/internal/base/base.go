// Package base holds the rendering shared by every dialect. Dialect renderers
// embed the base Renderer and override the Visit methods whose syntax differs.
package base

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/renderer/dialects/internal/bufwriter"
)

// ErrUnsupportedNode is returned for nodes or operations a dialect cannot express.
var ErrUnsupportedNode = errors.New("not supported by")

// Options configures the dialect-specific details of the base renderer.
type Options struct {
	// QuoteIdent quotes an identifier.
	QuoteIdent func(name string) string
	// AutoIncrement is appended to auto-incrementing column definitions.
	AutoIncrement string
}

// Renderer renders the statements whose syntax is common to all dialects.
type Renderer struct {
	dialect string
	w       *bufwriter.Writer
	opts    Options
	// pending is set when the last thing written is a statement still lacking
	// its terminator.
	pending bool
}

// New creates a base renderer writing into w.
func New(dialect string, w *bufwriter.Writer, opts Options) *Renderer {
	return &Renderer{
		dialect: dialect,
		w:       w,
		opts:    opts,
	}
}

// Dialect returns the dialect name.
func (r *Renderer) Dialect() string {
	return r.dialect
}

// Reset discards the accumulated output.
func (r *Renderer) Reset() {
	r.w.Reset()
	r.pending = false
}

// Output returns the accumulated SQL.
func (r *Renderer) Output() string {
	return r.w.String()
}

// RenderWith resets the output and renders node with v, which is the dialect
// renderer embedding r.
func (r *Renderer) RenderWith(v ast.Visitor, node ast.Node) (string, error) {
	r.Reset()
	if err := node.Accept(v); err != nil {
		return "", err
	}
	return r.Output(), nil
}

// Unsupported returns an error for a construct the dialect cannot express.
func (r *Renderer) Unsupported(what string) error {
	return fmt.Errorf("%s is %w %s", what, ErrUnsupportedNode, r.dialect)
}

// Statement writes one complete statement.
func (r *Renderer) Statement(sql string) {
	if r.pending {
		r.w.WriteString(";\n")
	}
	r.w.WriteString(sql)
	r.pending = true
}

// Statementf writes one complete formatted statement.
func (r *Renderer) Statementf(format string, args ...any) {
	r.Statement(fmt.Sprintf(format, args...))
}

// Quote quotes an identifier.
func (r *Renderer) Quote(name string) string {
	return r.opts.QuoteIdent(name)
}

// QuoteList quotes identifiers and joins them with commas.
func (r *Renderer) QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = r.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// DefaultClause returns the SQL of a default value.
func (r *Renderer) DefaultClause(d *ast.DefaultValue) string {
	if d.Expression != "" {
		return d.Expression
	}
	return d.Value
}

// ColumnDefinition renders a column as it appears in CREATE TABLE or ADD COLUMN.
func (r *Renderer) ColumnDefinition(col *ast.ColumnNode) string {
	var b strings.Builder
	b.WriteString(r.Quote(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Type)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(r.DefaultClause(col.Default))
	}
	if col.Primary {
		b.WriteString(" PRIMARY KEY")
	}
	if col.AutoInc && r.opts.AutoIncrement != "" {
		b.WriteString(" ")
		b.WriteString(r.opts.AutoIncrement)
	}
	return b.String()
}

// ConstraintDefinition renders a table-level constraint.
func (r *Renderer) ConstraintDefinition(c *ast.ConstraintNode) (string, error) {
	var b strings.Builder
	if c.Name != "" {
		b.WriteString("CONSTRAINT ")
		b.WriteString(r.Quote(c.Name))
		b.WriteString(" ")
	}
	switch c.Type {
	case ast.PrimaryKeyConstraint:
		fmt.Fprintf(&b, "PRIMARY KEY (%s)", r.QuoteList(c.Columns))
		return b.String(), nil
	case ast.ForeignKeyConstraint:
		if c.Reference == nil {
			return "", fmt.Errorf("foreign key %q has no reference", c.Name)
		}
		fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)",
			r.QuoteList(c.Columns), r.Quote(c.Reference.Table), r.QuoteList(c.Reference.Columns))
		if c.Reference.OnDelete != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(c.Reference.OnDelete)
		}
		if c.Reference.OnUpdate != "" {
			b.WriteString(" ON UPDATE ")
			b.WriteString(c.Reference.OnUpdate)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unknown constraint type %d", c.Type)
	}
}

// VisitCreateTable renders CREATE TABLE with one definition per line.
func (r *Renderer) VisitCreateTable(node *ast.CreateTableNode) error {
	defs := make([]string, 0, len(node.Columns)+len(node.Constraints))
	for _, col := range node.Columns {
		defs = append(defs, r.ColumnDefinition(col))
	}
	for _, c := range node.Constraints {
		def, err := r.ConstraintDefinition(c)
		if err != nil {
			return fmt.Errorf("failed to render table %q: %w", node.Name, err)
		}
		defs = append(defs, def)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n    %s\n)", r.Quote(node.Name), strings.Join(defs, ",\n    "))
	for _, key := range slices.Sorted(maps.Keys(node.Options)) {
		fmt.Fprintf(&b, " %s=%s", key, node.Options[key])
	}
	r.Statement(b.String())
	return nil
}

// VisitAlterTable renders ALTER TABLE with all operations in one statement.
func (r *Renderer) VisitAlterTable(node *ast.AlterTableNode) error {
	clauses := make([]string, 0, len(node.Operations))
	for _, op := range node.Operations {
		clause, err := r.AlterOperation(op)
		if err != nil {
			return fmt.Errorf("failed to render alter table %q: %w", node.Name, err)
		}
		clauses = append(clauses, clause)
	}
	r.Statementf("ALTER TABLE %s %s", r.Quote(node.Name), strings.Join(clauses, ", "))
	return nil
}

// AlterOperation renders one ALTER TABLE clause in standard syntax.
func (r *Renderer) AlterOperation(op ast.AlterOperation) (string, error) {
	switch op := op.(type) {
	case *ast.AddColumnOperation:
		return "ADD COLUMN " + r.ColumnDefinition(op.Column), nil
	case *ast.DropColumnOperation:
		return "DROP COLUMN " + r.Quote(op.ColumnName), nil
	case *ast.AlterColumnTypeOperation:
		clause := fmt.Sprintf("ALTER COLUMN %s TYPE %s", r.Quote(op.ColumnName), op.Type)
		if op.Using != "" {
			clause += " USING " + op.Using
		}
		return clause, nil
	case *ast.AlterColumnNullOperation:
		if op.NotNull {
			return fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", r.Quote(op.ColumnName)), nil
		}
		return fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", r.Quote(op.ColumnName)), nil
	case *ast.AlterColumnDefaultOperation:
		if op.Default == nil {
			return fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", r.Quote(op.ColumnName)), nil
		}
		return fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", r.Quote(op.ColumnName), r.DefaultClause(op.Default)), nil
	case *ast.AddConstraintOperation:
		def, err := r.ConstraintDefinition(op.Constraint)
		if err != nil {
			return "", err
		}
		return "ADD " + def, nil
	case *ast.DropConstraintOperation:
		return "DROP CONSTRAINT " + r.Quote(op.Name), nil
	case *ast.DropPrimaryKeyOperation:
		return "DROP CONSTRAINT " + r.Quote(op.Name), nil
	case *ast.ModifyColumnOperation, *ast.AlterColumnIdentityOperation:
		return "", r.Unsupported(OperationName(op))
	default:
		return "", fmt.Errorf("unknown alter table operation %T", op)
	}
}

// VisitColumn writes a column definition without a statement terminator.
func (r *Renderer) VisitColumn(node *ast.ColumnNode) error {
	r.w.WriteString(r.ColumnDefinition(node))
	return nil
}

// VisitConstraint writes a constraint definition without a statement terminator.
func (r *Renderer) VisitConstraint(node *ast.ConstraintNode) error {
	def, err := r.ConstraintDefinition(node)
	if err != nil {
		return err
	}
	r.w.WriteString(def)
	return nil
}

// VisitIndex renders CREATE INDEX, with a WHERE clause for partial indexes.
func (r *Renderer) VisitIndex(node *ast.IndexNode) error {
	unique := ""
	if node.Unique {
		unique = "UNIQUE "
	}
	sql := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, r.Quote(node.Name), r.Quote(node.Table), r.QuoteList(node.Columns))
	if node.Condition != "" {
		sql += " WHERE " + node.Condition
	}
	r.Statement(sql)
	return nil
}

// VisitDropIndex renders DROP INDEX.
func (r *Renderer) VisitDropIndex(node *ast.DropIndexNode) error {
	ifExists := ""
	if node.IfExists {
		ifExists = "IF EXISTS "
	}
	r.Statementf("DROP INDEX %s%s", ifExists, r.Quote(node.Name))
	return nil
}

// VisitDropTable renders DROP TABLE.
func (r *Renderer) VisitDropTable(node *ast.DropTableNode) error {
	ifExists := ""
	if node.IfExists {
		ifExists = "IF EXISTS "
	}
	cascade := ""
	if node.Cascade {
		cascade = " CASCADE"
	}
	r.Statementf("DROP TABLE %s%s%s", ifExists, r.Quote(node.Name), cascade)
	return nil
}

// VisitEnum fails: standalone enum types are PostgreSQL-specific.
func (r *Renderer) VisitEnum(node *ast.EnumNode) error {
	return r.Unsupported(fmt.Sprintf("CREATE TYPE %s", node.Name))
}

// VisitAlterType fails: standalone enum types are PostgreSQL-specific.
func (r *Renderer) VisitAlterType(node *ast.AlterTypeNode) error {
	return r.Unsupported(fmt.Sprintf("ALTER TYPE %s", node.Name))
}

// VisitDropType fails: standalone enum types are PostgreSQL-specific.
func (r *Renderer) VisitDropType(node *ast.DropTypeNode) error {
	return r.Unsupported(fmt.Sprintf("DROP TYPE %s", node.Name))
}

// VisitBackfill renders the UPDATE replacing NULLs in a column.
func (r *Renderer) VisitBackfill(node *ast.BackfillNode) error {
	col := r.Quote(node.Column)
	r.Statementf("UPDATE %s SET %s = %s WHERE %s IS NULL", r.Quote(node.Table), col, r.DefaultClause(node.Value), col)
	return nil
}

// VisitComment renders a single-line comment.
func (r *Renderer) VisitComment(node *ast.CommentNode) error {
	if r.pending {
		r.w.WriteString(";\n")
		r.pending = false
	}
	for _, line := range strings.Split(node.Text, "\n") {
		r.w.WriteLinef("-- %s", line)
	}
	return nil
}

// OperationName names an ALTER TABLE operation in error messages.
func OperationName(op ast.AlterOperation) string {
	switch op.(type) {
	case *ast.AddColumnOperation:
		return "ADD COLUMN"
	case *ast.DropColumnOperation:
		return "DROP COLUMN"
	case *ast.ModifyColumnOperation:
		return "MODIFY COLUMN"
	case *ast.AlterColumnTypeOperation:
		return "ALTER COLUMN TYPE"
	case *ast.AlterColumnNullOperation:
		return "ALTER COLUMN NULL"
	case *ast.AlterColumnDefaultOperation:
		return "ALTER COLUMN DEFAULT"
	case *ast.AlterColumnIdentityOperation:
		return "ALTER COLUMN IDENTITY"
	case *ast.AddConstraintOperation:
		return "ADD CONSTRAINT"
	case *ast.DropConstraintOperation:
		return "DROP CONSTRAINT"
	case *ast.DropPrimaryKeyOperation:
		return "DROP PRIMARY KEY"
	default:
		return fmt.Sprintf("%T", op)
	}
}
