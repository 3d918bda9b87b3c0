package memory

import (
	"fmt"
	"slices"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/steps"
)

// apply performs one step on target. Every check runs before the first
// mutation, so a failing step leaves target untouched.
func (c *Connector) apply(target *state, s steps.Step) error {
	db := target.schema
	switch s := s.(type) {
	case steps.CreateTable:
		if db.Table(s.Table.Name) != nil {
			return fmt.Errorf("relation %q already exists", s.Table.Name)
		}
		for _, col := range s.Table.Columns {
			if err := checkEnumExists(db, col); err != nil {
				return err
			}
		}
		// Inline foreign keys may reference tables created later, as in SQLite.
		db.Tables = append(db.Tables, s.Table.Clone())
		target.rows[s.Table.Name] = nil

	case steps.DropTable:
		if db.Table(s.Table.Name) == nil {
			return fmt.Errorf("table %q does not exist", s.Table.Name)
		}
		if c.Supports(connector.AlterForeignKeys) {
			for _, t := range db.Tables {
				for _, fk := range t.ForeignKeys {
					if t.Name != s.Table.Name && fk.ReferencedTable == s.Table.Name {
						return fmt.Errorf("cannot drop table %q because constraint %q on table %q depends on it",
							s.Table.Name, t.ForeignKeyName(fk), t.Name)
					}
				}
			}
		}
		db.Tables = slices.DeleteFunc(db.Tables, func(t schema.Table) bool { return t.Name == s.Table.Name })
		delete(target.rows, s.Table.Name)

	case steps.AddColumn:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		if t.Column(s.Column.Name) != nil {
			return fmt.Errorf("column %q of relation %q already exists", s.Column.Name, s.Table)
		}
		if err := checkEnumExists(db, s.Column); err != nil {
			return err
		}
		rows := target.rows[s.Table]
		col := s.Column
		if len(rows) > 0 && !col.Nullable && col.Default == nil && !col.AutoIncrement {
			return fmt.Errorf("column %q of relation %q contains null values", col.Name, s.Table)
		}
		t.Columns = append(t.Columns, col.Clone())
		for i, r := range rows {
			if col.AutoIncrement {
				r[col.Name] = int64(i + 1)
				continue
			}
			r[col.Name] = defaultValue(col.Default)
		}

	case steps.DropColumn:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		if t.Column(s.Column.Name) == nil {
			return fmt.Errorf("column %q of relation %q does not exist", s.Column.Name, s.Table)
		}
		if err := checkColumnUnused(db, t, s.Column.Name); err != nil {
			return err
		}
		t.Columns = slices.DeleteFunc(t.Columns, func(col schema.Column) bool { return col.Name == s.Column.Name })
		t.PrimaryKey = slices.DeleteFunc(t.PrimaryKey, func(name string) bool { return name == s.Column.Name })
		for _, r := range target.rows[s.Table] {
			delete(r, s.Column.Name)
		}

	case steps.AlterColumn:
		return alterColumn(target, s)

	case steps.AlterPrimaryKey:
		if len(s.Previous) > 0 && c.Supports(connector.AlterForeignKeys) {
			for _, t := range db.Tables {
				for _, fk := range t.ForeignKeys {
					if fk.ReferencedTable == s.Table {
						return fmt.Errorf("cannot drop constraint %q on table %q because constraint %q on table %q depends on it",
							s.Table+"_pkey", s.Table, t.ForeignKeyName(fk), t.Name)
					}
				}
			}
		}
		return alterPrimaryKey(target, s)

	case steps.CreateEnum:
		if db.Enum(s.Enum.Name) != nil {
			return fmt.Errorf("type %q already exists", s.Enum.Name)
		}
		db.Enums = append(db.Enums, schema.Enum{Name: s.Enum.Name, Variants: slices.Clone(s.Enum.Variants)})

	case steps.DropEnum:
		if db.Enum(s.Enum.Name) == nil {
			return fmt.Errorf("type %q does not exist", s.Enum.Name)
		}
		if usages := db.EnumUsages(s.Enum.Name); len(usages) > 0 {
			return fmt.Errorf("cannot drop type %q because column %s.%s depends on it", s.Enum.Name, usages[0].Table, usages[0].Column.Name)
		}
		db.Enums = slices.DeleteFunc(db.Enums, func(e schema.Enum) bool { return e.Name == s.Enum.Name })

	case steps.AddEnumVariant:
		return setVariants(target, s.Enum, s.Variants)

	case steps.RemoveEnumVariant:
		return setVariants(target, s.Enum, s.Variants)

	case steps.ReorderEnumVariants:
		return setVariants(target, s.Enum, s.Variants)

	case steps.AddForeignKey:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		name := schema.ForeignKeyName(s.Table, s.ForeignKey)
		for _, fk := range t.ForeignKeys {
			if t.ForeignKeyName(fk) == name {
				return fmt.Errorf("constraint %q for relation %q already exists", name, s.Table)
			}
		}
		for _, col := range s.ForeignKey.Columns {
			if t.Column(col) == nil {
				return fmt.Errorf("column %q referenced in foreign key constraint does not exist", col)
			}
		}
		if err := checkReference(db, s.ForeignKey); err != nil {
			return err
		}
		fk := s.ForeignKey
		fk.Columns = slices.Clone(fk.Columns)
		fk.ReferencedColumns = slices.Clone(fk.ReferencedColumns)
		t.ForeignKeys = append(t.ForeignKeys, fk)

	case steps.DropForeignKey:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		name := schema.ForeignKeyName(s.Table, s.ForeignKey)
		i := slices.IndexFunc(t.ForeignKeys, func(fk schema.ForeignKey) bool {
			return t.ForeignKeyName(fk) == name || fk.SameStructure(s.ForeignKey)
		})
		if i < 0 {
			return fmt.Errorf("constraint %q of relation %q does not exist", name, s.Table)
		}
		t.ForeignKeys = slices.Delete(t.ForeignKeys, i, i+1)

	case steps.CreateIndex:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		name := schema.IndexName(s.Table, s.Index)
		if slices.ContainsFunc(t.Indexes, func(idx schema.Index) bool { return t.IndexName(idx) == name }) {
			return fmt.Errorf("relation %q already exists", name)
		}
		for _, col := range s.Index.Columns {
			if t.Column(col) == nil {
				return fmt.Errorf("column %q does not exist", col)
			}
		}
		if s.Index.Unique && s.Index.Where == "" {
			if err := checkUnique(target.rows[s.Table], s.Index.Columns, name); err != nil {
				return err
			}
		}
		idx := s.Index
		idx.Columns = slices.Clone(idx.Columns)
		t.Indexes = append(t.Indexes, idx)

	case steps.DropIndex:
		t, err := table(db, s.Table)
		if err != nil {
			return err
		}
		name := schema.IndexName(s.Table, s.Index)
		i := slices.IndexFunc(t.Indexes, func(idx schema.Index) bool { return t.IndexName(idx) == name })
		if i < 0 {
			return fmt.Errorf("index %q does not exist", name)
		}
		t.Indexes = slices.Delete(t.Indexes, i, i+1)

	default:
		panic(fmt.Sprintf("memory: unhandled step type %T", s))
	}
	return nil
}

func table(db *schema.Schema, name string) (*schema.Table, error) {
	t := db.Table(name)
	if t == nil {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t, nil
}

func checkEnumExists(db *schema.Schema, col schema.Column) error {
	if col.Type.IsEnum() && db.Enum(col.Type.EnumName) == nil {
		return fmt.Errorf("type %q does not exist", col.Type.EnumName)
	}
	return nil
}

func checkReference(db *schema.Schema, fk schema.ForeignKey) error {
	ref := db.Table(fk.ReferencedTable)
	if ref == nil {
		return fmt.Errorf("relation %q does not exist", fk.ReferencedTable)
	}
	for _, col := range fk.ReferencedColumns {
		if ref.Column(col) == nil {
			return fmt.Errorf("column %q referenced in foreign key constraint does not exist", col)
		}
	}
	return nil
}

// checkColumnUnused fails when an index or foreign key still needs the column.
func checkColumnUnused(db *schema.Schema, t *schema.Table, column string) error {
	for _, idx := range t.Indexes {
		if slices.Contains(idx.Columns, column) {
			return fmt.Errorf("cannot drop column %q because index %q depends on it", column, t.IndexName(idx))
		}
	}
	for _, other := range db.Tables {
		for _, fk := range other.ForeignKeys {
			if other.Name == t.Name && slices.Contains(fk.Columns, column) ||
				fk.ReferencedTable == t.Name && slices.Contains(fk.ReferencedColumns, column) {
				return fmt.Errorf("cannot drop column %q because constraint %q depends on it", column, other.ForeignKeyName(fk))
			}
		}
	}
	return nil
}

func checkUnique(rows []Row, columns []string, name string) error {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		key := make([]any, 0, len(columns))
		hasNull := false
		for _, col := range columns {
			if r[col] == nil {
				hasNull = true
			}
			key = append(key, r[col])
		}
		if hasNull {
			continue
		}
		k := fmt.Sprint(key...)
		if seen[k] {
			return fmt.Errorf("could not create unique index %q: duplicate key", name)
		}
		seen[k] = true
	}
	return nil
}

func alterColumn(target *state, s steps.AlterColumn) error {
	db := target.schema
	t, err := table(db, s.Table)
	if err != nil {
		return err
	}
	col := t.Column(s.Previous.Name)
	if col == nil {
		return fmt.Errorf("column %q of relation %q does not exist", s.Previous.Name, s.Table)
	}
	if err := checkEnumExists(db, s.Next); err != nil {
		return err
	}

	rows := target.rows[s.Table]
	values := make([]any, len(rows))
	for i, r := range rows {
		v := r[s.Previous.Name]
		if s.Next.Type.IsEnum() && v != nil {
			e := db.Enum(s.Next.Type.EnumName)
			if str, ok := v.(string); !ok || !e.HasVariant(str) {
				return fmt.Errorf("invalid input value for enum %q: %q", e.Name, fmt.Sprint(v))
			}
		}
		if v == nil && !s.Next.Nullable {
			if s.Next.Default == nil {
				return fmt.Errorf("column %q of relation %q contains null values", s.Next.Name, s.Table)
			}
			v = defaultValue(s.Next.Default)
		}
		values[i] = v
	}

	*col = s.Next.Clone()
	for i, r := range rows {
		delete(r, s.Previous.Name)
		r[s.Next.Name] = values[i]
	}
	return nil
}

// alterPrimaryKey replaces the key of a table. Stored rows must hold distinct
// non-null values for the new key columns.
func alterPrimaryKey(target *state, s steps.AlterPrimaryKey) error {
	t, err := table(target.schema, s.Table)
	if err != nil {
		return err
	}
	name := s.Table + "_pkey"
	switch {
	case len(s.Previous) > 0 && len(t.PrimaryKey) == 0:
		return fmt.Errorf("constraint %q of relation %q does not exist", name, s.Table)
	case len(s.Previous) == 0 && len(t.PrimaryKey) > 0:
		return fmt.Errorf("multiple primary keys for table %q are not allowed", s.Table)
	}

	rows := target.rows[s.Table]
	for _, col := range s.Next {
		if t.Column(col) == nil {
			return fmt.Errorf("column %q of relation %q does not exist", col, s.Table)
		}
		for _, r := range rows {
			if r[col] == nil {
				return fmt.Errorf("column %q of relation %q contains null values", col, s.Table)
			}
		}
	}
	if err := checkUnique(rows, s.Next, name); err != nil {
		return err
	}
	t.PrimaryKey = slices.Clone(s.Next)
	return nil
}

// setVariants replaces the variant list of an enum. Stored values must all be
// in the new list; column defaults naming a removed variant are dropped.
func setVariants(target *state, name string, variants []string) error {
	db := target.schema
	e := db.Enum(name)
	if e == nil {
		return fmt.Errorf("type %q does not exist", name)
	}
	usages := db.EnumUsages(name)
	for _, u := range usages {
		for _, r := range target.rows[u.Table] {
			v := r[u.Column.Name]
			if v == nil {
				continue
			}
			if str, ok := v.(string); !ok || !slices.Contains(variants, str) {
				return fmt.Errorf("invalid input value for enum %q: %q", name, fmt.Sprint(v))
			}
		}
	}

	e.Variants = slices.Clone(variants)
	for _, u := range usages {
		col := db.Table(u.Table).Column(u.Column.Name)
		if col.Default != nil && col.Default.Kind == schema.DefaultEnumVariant && !slices.Contains(variants, col.Default.Value) {
			col.Default = nil
		}
	}
	return nil
}

func defaultValue(d *schema.DefaultValue) any {
	if d == nil {
		return nil
	}
	if d.Kind == schema.DefaultExpression {
		return d.Value + "()"
	}
	return d.Value
}
