// Package steps defines the closed set of schema migration steps produced by the
// differ and consumed by the orderer, the destructive change classifier and the
// dialect renderers.
//
// Step is a sealed interface: only the types declared in this package implement
// it, so a type switch over a Step with a default branch that panics is
// exhaustive. Every step carries the data needed to render it without consulting
// either schema again.
package steps

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemapush/core/schema"
)

// Kind identifies the variant of a Step.
type Kind string

const (
	KindCreateTable         Kind = "CreateTable"
	KindDropTable           Kind = "DropTable"
	KindAddColumn           Kind = "AddColumn"
	KindDropColumn          Kind = "DropColumn"
	KindAlterColumn         Kind = "AlterColumn"
	KindAlterPrimaryKey     Kind = "AlterPrimaryKey"
	KindCreateEnum          Kind = "CreateEnum"
	KindDropEnum            Kind = "DropEnum"
	KindAddEnumVariant      Kind = "AddEnumVariant"
	KindRemoveEnumVariant   Kind = "RemoveEnumVariant"
	KindReorderEnumVariants Kind = "ReorderEnumVariants"
	KindAddForeignKey       Kind = "AddForeignKey"
	KindDropForeignKey      Kind = "DropForeignKey"
	KindCreateIndex         Kind = "CreateIndex"
	KindDropIndex           Kind = "DropIndex"
	KindRawScript           Kind = "RawScript"
)

// Step is one atomic schema operation.
type Step interface {
	Kind() Kind
	// String is a short human readable description used in logs and plans.
	String() string
	step()
}

// CreateTable creates a table with its columns, primary key and indexes.
// Foreign keys are emitted as separate AddForeignKey steps.
type CreateTable struct {
	Table schema.Table
	// Enums holds the definitions of the enums the table's columns use.
	Enums []schema.Enum
}

// DropTable drops a table. Table is the definition as it exists before the drop.
type DropTable struct {
	Table schema.Table
}

// AddColumn adds a column to an existing table.
type AddColumn struct {
	Table  string
	Column schema.Column
	// Enum is set when the column is enum typed.
	Enum *schema.Enum
}

// DropColumn drops a column from an existing table.
type DropColumn struct {
	Table  string
	Column schema.Column
}

// AlterColumn changes the definition of an existing column.
type AlterColumn struct {
	Table    string
	Previous schema.Column
	Next     schema.Column
	Changes  []schema.ColumnChange
	// Enum is set when the next column definition is enum typed.
	Enum *schema.Enum
}

// HasChange reports whether the change set contains ch.
func (s AlterColumn) HasChange(ch schema.ColumnChange) bool {
	for _, c := range s.Changes {
		if c == ch {
			return true
		}
	}
	return false
}

// AlterPrimaryKey replaces the primary key of an existing table. An empty
// Previous only adds the key, an empty Next only drops it.
type AlterPrimaryKey struct {
	Table    string
	Previous []string
	Next     []string
}

// CreateEnum creates a standalone enum.
type CreateEnum struct {
	Enum schema.Enum
}

// DropEnum drops an enum.
type DropEnum struct {
	Enum schema.Enum
}

// AddEnumVariant adds one variant to an existing enum.
type AddEnumVariant struct {
	Enum    string
	Variant string
	// Variants is the full variant list once this step has run.
	Variants []string
	// Usages are the current definitions of the columns that use the enum
	// both before and after the migration.
	Usages []schema.EnumUsage
}

// RemoveEnumVariant removes one variant from an existing enum.
type RemoveEnumVariant struct {
	Enum    string
	Variant string
	// Variants is the full variant list once this step has run.
	Variants []string
	// Usages are the current definitions of the columns that use the enum
	// both before and after the migration.
	Usages []schema.EnumUsage
}

// ReorderEnumVariants restates an enum whose variants stay the same but change
// position. Native enums sort by declaration order, and MySQL stores the
// position of the value.
type ReorderEnumVariants struct {
	Enum     string
	Previous []string
	// Variants is the variant list in its new order.
	Variants []string
	// Usages are the current definitions of the columns that use the enum
	// both before and after the migration.
	Usages []schema.EnumUsage
}

// AddForeignKey adds a foreign key constraint to a table.
type AddForeignKey struct {
	Table      string
	ForeignKey schema.ForeignKey
	// NewTable is set when the owning table is created by the same migration.
	NewTable bool
}

// DropForeignKey drops a foreign key constraint.
type DropForeignKey struct {
	Table      string
	ForeignKey schema.ForeignKey
	// TableDropped is set when the owning table is dropped by the same migration.
	TableDropped bool
}

// CreateIndex creates an index on an existing table.
type CreateIndex struct {
	Table string
	Index schema.Index
}

// DropIndex drops an index.
type DropIndex struct {
	Table string
	Index schema.Index
}

// RawScript is a verbatim SQL script.
type RawScript struct {
	Script string
}

func (CreateTable) Kind() Kind         { return KindCreateTable }
func (DropTable) Kind() Kind           { return KindDropTable }
func (AddColumn) Kind() Kind           { return KindAddColumn }
func (DropColumn) Kind() Kind          { return KindDropColumn }
func (AlterColumn) Kind() Kind         { return KindAlterColumn }
func (AlterPrimaryKey) Kind() Kind     { return KindAlterPrimaryKey }
func (CreateEnum) Kind() Kind          { return KindCreateEnum }
func (DropEnum) Kind() Kind            { return KindDropEnum }
func (AddEnumVariant) Kind() Kind      { return KindAddEnumVariant }
func (RemoveEnumVariant) Kind() Kind   { return KindRemoveEnumVariant }
func (ReorderEnumVariants) Kind() Kind { return KindReorderEnumVariants }
func (AddForeignKey) Kind() Kind       { return KindAddForeignKey }
func (DropForeignKey) Kind() Kind      { return KindDropForeignKey }
func (CreateIndex) Kind() Kind         { return KindCreateIndex }
func (DropIndex) Kind() Kind           { return KindDropIndex }
func (RawScript) Kind() Kind           { return KindRawScript }

func (CreateTable) step()         {}
func (DropTable) step()           {}
func (AddColumn) step()           {}
func (DropColumn) step()          {}
func (AlterColumn) step()         {}
func (AlterPrimaryKey) step()     {}
func (CreateEnum) step()          {}
func (DropEnum) step()            {}
func (AddEnumVariant) step()      {}
func (RemoveEnumVariant) step()   {}
func (ReorderEnumVariants) step() {}
func (AddForeignKey) step()       {}
func (DropForeignKey) step()      {}
func (CreateIndex) step()         {}
func (DropIndex) step()           {}
func (RawScript) step()           {}

func (s CreateTable) String() string { return fmt.Sprintf("create table %s", s.Table.Name) }
func (s DropTable) String() string   { return fmt.Sprintf("drop table %s", s.Table.Name) }
func (s AddColumn) String() string   { return fmt.Sprintf("add column %s.%s", s.Table, s.Column.Name) }
func (s DropColumn) String() string  { return fmt.Sprintf("drop column %s.%s", s.Table, s.Column.Name) }

func (s AlterColumn) String() string {
	changes := make([]string, len(s.Changes))
	for i, c := range s.Changes {
		changes[i] = string(c)
	}
	return fmt.Sprintf("alter column %s.%s (%s)", s.Table, s.Next.Name, strings.Join(changes, ", "))
}

func (s AlterPrimaryKey) String() string {
	return fmt.Sprintf("alter primary key %s (%s) -> (%s)", s.Table, strings.Join(s.Previous, ", "), strings.Join(s.Next, ", "))
}

func (s CreateEnum) String() string { return fmt.Sprintf("create enum %s", s.Enum.Name) }
func (s DropEnum) String() string   { return fmt.Sprintf("drop enum %s", s.Enum.Name) }
func (s AddEnumVariant) String() string {
	return fmt.Sprintf("add variant %s to enum %s", s.Variant, s.Enum)
}
func (s RemoveEnumVariant) String() string {
	return fmt.Sprintf("remove variant %s from enum %s", s.Variant, s.Enum)
}
func (s ReorderEnumVariants) String() string {
	return fmt.Sprintf("reorder variants of enum %s", s.Enum)
}
func (s AddForeignKey) String() string {
	return fmt.Sprintf("add foreign key %s.(%s) -> %s", s.Table, strings.Join(s.ForeignKey.Columns, ", "), s.ForeignKey.ReferencedTable)
}
func (s DropForeignKey) String() string {
	return fmt.Sprintf("drop foreign key %s.(%s) -> %s", s.Table, strings.Join(s.ForeignKey.Columns, ", "), s.ForeignKey.ReferencedTable)
}
func (s CreateIndex) String() string {
	return fmt.Sprintf("create index on %s (%s)", s.Table, strings.Join(s.Index.Columns, ", "))
}
func (s DropIndex) String() string {
	return fmt.Sprintf("drop index on %s (%s)", s.Table, strings.Join(s.Index.Columns, ", "))
}
func (RawScript) String() string { return "raw script" }

// TableOf returns the name of the table a step operates on, or "" for steps that
// are not table scoped (enum steps and raw scripts).
func TableOf(s Step) string {
	switch s := s.(type) {
	case CreateTable:
		return s.Table.Name
	case DropTable:
		return s.Table.Name
	case AddColumn:
		return s.Table
	case DropColumn:
		return s.Table
	case AlterColumn:
		return s.Table
	case AlterPrimaryKey:
		return s.Table
	case AddForeignKey:
		return s.Table
	case DropForeignKey:
		return s.Table
	case CreateIndex:
		return s.Table
	case DropIndex:
		return s.Table
	default:
		return ""
	}
}

// IsDestructive reports whether a step can remove data or schema objects by its
// nature, regardless of the data actually present.
func IsDestructive(s Step) bool {
	switch s.(type) {
	case DropTable, DropColumn, DropEnum, RemoveEnumVariant, AlterColumn, RawScript:
		return true
	default:
		return false
	}
}
