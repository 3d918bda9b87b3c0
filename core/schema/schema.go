// Package schema contains the dialect-independent representation of a relational
// database schema: tables, columns, enums, indexes and foreign keys.
//
// A Schema is built once per operation (the desired one from a schema source, the
// current one from database introspection) and treated as immutable afterwards.
// Names are kept exactly as declared; quoting and casing rules belong to the
// renderers and are applied at render time, never at diff time.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Schema is a complete set of tables and enums keyed by name.
type Schema struct {
	Tables []Table `json:"tables"`
	Enums  []Enum  `json:"enums,omitempty"`
}

// Table is a database table.
//
// Column order matters for some dialects when generating ALTER statements, but it
// is irrelevant for identity: two tables with the same columns in a different
// order are considered equal by the differ.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column is a table column with a logical (not SQL) type.
type Column struct {
	Name          string        `json:"name"`
	Type          ColumnType    `json:"type"`
	Nullable      bool          `json:"nullable,omitempty"`
	Default       *DefaultValue `json:"default,omitempty"`
	AutoIncrement bool          `json:"autoincrement,omitempty"`
}

// Enum is an enumerated type. Variant order is significant for dialects that
// store enums positionally.
type Enum struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
}

// Index is a secondary index on a table.
type Index struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
	// Where is the predicate of a partial index, empty for full indexes.
	Where string `json:"where,omitempty"`
}

// ReferentialAction is an ON DELETE / ON UPDATE action of a foreign key.
type ReferentialAction string

const (
	NoAction   ReferentialAction = "NO ACTION"
	Restrict   ReferentialAction = "RESTRICT"
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
)

// Normalize maps an empty action to NO ACTION, which is what every supported
// database assumes when the clause is omitted.
func (a ReferentialAction) Normalize() ReferentialAction {
	if a == "" {
		return NoAction
	}
	return ReferentialAction(strings.ToUpper(string(a)))
}

// ForeignKey is a foreign key constraint owned by a table.
type ForeignKey struct {
	Name              string            `json:"name,omitempty"`
	Columns           []string          `json:"columns"`
	ReferencedTable   string            `json:"referenced_table"`
	ReferencedColumns []string          `json:"referenced_columns"`
	OnDelete          ReferentialAction `json:"on_delete,omitempty"`
	OnUpdate          ReferentialAction `json:"on_update,omitempty"`
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	if s == nil {
		return nil
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Enum returns the enum with the given name, or nil.
func (s *Schema) Enum(name string) *Enum {
	if s == nil {
		return nil
	}
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

// TableNames returns the table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// EnumUsages returns every column, across all tables, whose type is the given enum.
func (s *Schema) EnumUsages(enumName string) []EnumUsage {
	var usages []EnumUsage
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Type.Kind == KindEnum && c.Type.EnumName == enumName {
				usages = append(usages, EnumUsage{Table: t.Name, Column: c})
			}
		}
	}
	return usages
}

// EnumUsage identifies a column that uses an enum.
type EnumUsage struct {
	Table  string `json:"table"`
	Column Column `json:"column"`
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Tables: make([]Table, len(s.Tables)),
		Enums:  make([]Enum, len(s.Enums)),
	}
	for i, t := range s.Tables {
		out.Tables[i] = t.Clone()
	}
	for i, e := range s.Enums {
		out.Enums[i] = Enum{Name: e.Name, Variants: slices.Clone(e.Variants)}
	}
	return out
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// IsPrimaryKey reports whether the column is part of the table's primary key.
func (t *Table) IsPrimaryKey(column string) bool {
	return slices.Contains(t.PrimaryKey, column)
}

// UsedEnums returns the names of the enums referenced by the table's columns, in
// column order and without duplicates.
func (t *Table) UsedEnums() []string {
	var names []string
	for _, c := range t.Columns {
		if c.Type.Kind == KindEnum && !slices.Contains(names, c.Type.EnumName) {
			names = append(names, c.Type.EnumName)
		}
	}
	return names
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Name:       t.Name,
		Columns:    make([]Column, len(t.Columns)),
		PrimaryKey: slices.Clone(t.PrimaryKey),
	}
	for i, c := range t.Columns {
		out.Columns[i] = c.Clone()
	}
	for _, idx := range t.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		out.Indexes = append(out.Indexes, idx)
	}
	for _, fk := range t.ForeignKeys {
		fk.Columns = slices.Clone(fk.Columns)
		fk.ReferencedColumns = slices.Clone(fk.ReferencedColumns)
		out.ForeignKeys = append(out.ForeignKeys, fk)
	}
	return out
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	if c.Default != nil {
		d := *c.Default
		c.Default = &d
	}
	return c
}

// Equal reports whether two columns have the same definition.
func (c Column) Equal(o Column) bool {
	return len(c.Diff(o)) == 0
}

// ColumnChange names one property of a column that differs between two definitions.
type ColumnChange string

const (
	ChangeType          ColumnChange = "type"
	ChangeNullability   ColumnChange = "nullable"
	ChangeDefault       ColumnChange = "default"
	ChangeAutoIncrement ColumnChange = "autoincrement"
)

// Diff lists the properties that differ between c and o. Names are not compared.
func (c Column) Diff(o Column) []ColumnChange {
	var changes []ColumnChange
	if !c.Type.Equal(o.Type) {
		changes = append(changes, ChangeType)
	}
	if c.Nullable != o.Nullable {
		changes = append(changes, ChangeNullability)
	}
	if !c.Default.Equal(o.Default) {
		changes = append(changes, ChangeDefault)
	}
	if c.AutoIncrement != o.AutoIncrement {
		changes = append(changes, ChangeAutoIncrement)
	}
	return changes
}

// IndexName returns the index name, deriving the conventional one when it is empty.
func (t *Table) IndexName(idx Index) string {
	return IndexName(t.Name, idx)
}

// ForeignKeyName returns the constraint name, deriving the conventional one when it is empty.
func (t *Table) ForeignKeyName(fk ForeignKey) string {
	return ForeignKeyName(t.Name, fk)
}

// IndexName returns the name of an index on table: its declared name, or
// <table>_<columns>_idx (<table>_<columns>_key for unique indexes).
func IndexName(table string, idx Index) string {
	if idx.Name != "" {
		return idx.Name
	}
	suffix := "idx"
	if idx.Unique {
		suffix = "key"
	}
	return fmt.Sprintf("%s_%s_%s", table, strings.Join(idx.Columns, "_"), suffix)
}

// ForeignKeyName returns the name of a foreign key owned by table: its declared
// name, or <table>_<columns>_fkey.
func ForeignKeyName(table string, fk ForeignKey) string {
	if fk.Name != "" {
		return fk.Name
	}
	return fmt.Sprintf("%s_%s_fkey", table, strings.Join(fk.Columns, "_"))
}

// SameStructure reports whether two indexes cover the same columns the same way.
// Names are ignored.
func (i Index) SameStructure(o Index) bool {
	return i.Unique == o.Unique &&
		slices.Equal(i.Columns, o.Columns) &&
		strings.TrimSpace(i.Where) == strings.TrimSpace(o.Where)
}

// SameStructure reports whether two foreign keys link the same columns with the
// same actions. Names are ignored.
func (f ForeignKey) SameStructure(o ForeignKey) bool {
	return slices.Equal(f.Columns, o.Columns) &&
		f.ReferencedTable == o.ReferencedTable &&
		slices.Equal(f.ReferencedColumns, o.ReferencedColumns) &&
		f.OnDelete.Normalize() == o.OnDelete.Normalize() &&
		f.OnUpdate.Normalize() == o.OnUpdate.Normalize()
}

// HasVariant reports whether the enum declares the variant.
func (e *Enum) HasVariant(v string) bool {
	return slices.Contains(e.Variants, v)
}
