package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is wrapped by every error returned from Validate.
var ErrInvalidSchema = errors.New("invalid schema")

// Validate checks the structural invariants of the schema: unique table and enum
// names, unique variants, existing enum and foreign key targets, and primary key,
// index and foreign key columns that exist. All problems are reported at once.
func (s *Schema) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidSchema, fmt.Sprintf(format, args...)))
	}

	enums := make(map[string]bool, len(s.Enums))
	for _, e := range s.Enums {
		if e.Name == "" {
			add("enum with empty name")
			continue
		}
		if enums[e.Name] {
			add("duplicate enum %q", e.Name)
		}
		enums[e.Name] = true
		if len(e.Variants) == 0 {
			add("enum %q has no variants", e.Name)
		}
		seen := make(map[string]bool, len(e.Variants))
		for _, v := range e.Variants {
			if seen[v] {
				add("enum %q declares variant %q twice", e.Name, v)
			}
			seen[v] = true
		}
	}

	tables := make(map[string]*Table, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name == "" {
			add("table with empty name")
			continue
		}
		if _, ok := tables[t.Name]; ok {
			add("duplicate table %q", t.Name)
			continue
		}
		tables[t.Name] = t
	}

	for _, t := range s.Tables {
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if cols[c.Name] {
				add("table %q declares column %q twice", t.Name, c.Name)
			}
			cols[c.Name] = true
			if c.Type.Kind == 0 {
				add("column %q.%q has no type", t.Name, c.Name)
			}
			if c.Type.Kind == KindEnum {
				if !enums[c.Type.EnumName] {
					add("column %q.%q references unknown enum %q", t.Name, c.Name, c.Type.EnumName)
				} else if c.Default != nil && c.Default.Kind == DefaultEnumVariant && !s.Enum(c.Type.EnumName).HasVariant(c.Default.Value) {
					add("column %q.%q defaults to unknown variant %q of enum %q", t.Name, c.Name, c.Default.Value, c.Type.EnumName)
				}
			}
		}
		for _, pk := range t.PrimaryKey {
			if !cols[pk] {
				add("primary key of table %q references unknown column %q", t.Name, pk)
			}
		}
		for _, idx := range t.Indexes {
			if len(idx.Columns) == 0 {
				add("index %q on table %q has no columns", t.IndexName(idx), t.Name)
			}
			for _, col := range idx.Columns {
				if !cols[col] {
					add("index %q on table %q references unknown column %q", t.IndexName(idx), t.Name, col)
				}
			}
		}
		for _, fk := range t.ForeignKeys {
			name := t.ForeignKeyName(fk)
			if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
				add("foreign key %q on table %q must list the same number of local and referenced columns", name, t.Name)
			}
			for _, col := range fk.Columns {
				if !cols[col] {
					add("foreign key %q on table %q references unknown column %q", name, t.Name, col)
				}
			}
			target, ok := tables[fk.ReferencedTable]
			if !ok {
				add("foreign key %q on table %q references unknown table %q", name, t.Name, fk.ReferencedTable)
				continue
			}
			for _, col := range fk.ReferencedColumns {
				if target.Column(col) == nil {
					add("foreign key %q on table %q references unknown column %q.%q", name, t.Name, fk.ReferencedTable, col)
				}
			}
		}
	}

	return errors.Join(errs...)
}
