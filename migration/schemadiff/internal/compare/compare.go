package compare

import (
	"slices"
	"sort"

	"github.com/stokaro/schemapush/config"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/steps"
)

// Diff accumulates the steps found by the comparison functions.
//
// The comparison functions are called in a fixed sequence by schemadiff and each
// appends the steps for one entity kind. Steps are appended in a deterministic
// order (tables, columns, enums and variants sorted or in declaration order), so
// the same pair of schemas always produces the same step list. The orderer relies
// on that emission order as its tie-break.
type Diff struct {
	Current *schema.Schema
	Desired *schema.Schema
	Opts    *config.CompareOptions
	Steps   []steps.Step

	// retyped records columns whose type changes, keyed by table and column key.
	// Foreign keys touching them are recreated around the change.
	retyped map[string]bool
	// rekeyed records the previous primary key of tables whose key changes,
	// keyed by table key. Foreign keys depending on it are recreated around the
	// change.
	rekeyed map[string][]string
}

// NewDiff creates an accumulator for the given schemas. A nil opts matches names
// exactly and ignores no table.
func NewDiff(current, desired *schema.Schema, opts *config.CompareOptions) *Diff {
	if current == nil {
		current = &schema.Schema{}
	}
	if desired == nil {
		desired = &schema.Schema{}
	}
	return &Diff{
		Current: current,
		Desired: desired,
		Opts:    opts,
		retyped: make(map[string]bool),
		rekeyed: make(map[string][]string),
	}
}

func (d *Diff) add(s steps.Step) {
	d.Steps = append(d.Steps, s)
}

func (d *Diff) key(name string) string {
	return d.Opts.NameKey(name)
}

func (d *Diff) columnKey(table, column string) string {
	return d.key(table) + "\x00" + d.key(column)
}

// tablePair is a table present in both schemas.
type tablePair struct {
	current *schema.Table
	desired *schema.Table
}

// tables splits the managed tables into added, removed and kept ones. Added tables
// keep desired declaration order, removed ones current declaration order, and
// kept ones desired declaration order.
func (d *Diff) tables() (added, removed []*schema.Table, kept []tablePair) {
	current := make(map[string]*schema.Table, len(d.Current.Tables))
	for i := range d.Current.Tables {
		t := &d.Current.Tables[i]
		if d.Opts.IsTableIgnored(t.Name) {
			continue
		}
		current[d.key(t.Name)] = t
	}
	desired := make(map[string]*schema.Table, len(d.Desired.Tables))
	for i := range d.Desired.Tables {
		t := &d.Desired.Tables[i]
		if d.Opts.IsTableIgnored(t.Name) {
			continue
		}
		desired[d.key(t.Name)] = t
		if cur, ok := current[d.key(t.Name)]; ok {
			kept = append(kept, tablePair{current: cur, desired: t})
		} else {
			added = append(added, t)
		}
	}
	for i := range d.Current.Tables {
		t := &d.Current.Tables[i]
		if d.Opts.IsTableIgnored(t.Name) {
			continue
		}
		if _, ok := desired[d.key(t.Name)]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed, kept
}

// Tables compares the table sets of both schemas.
//
// Removed tables yield one DropForeignKey per foreign key they own, flagged
// TableDropped, followed by DropTable. Added tables yield CreateTable carrying
// the enum definitions their columns use, followed by one AddForeignKey per
// foreign key, flagged NewTable. Dialects that can only declare foreign keys
// inline render those inside CREATE TABLE and skip the separate steps. Foreign
// keys referencing an existing table use its name as it exists in the database.
//
// Tables present in both schemas are handled by TableColumns, Indexes and
// ForeignKeys.
func Tables(d *Diff) {
	added, removed, _ := d.tables()

	for _, t := range removed {
		for _, fk := range t.ForeignKeys {
			d.add(steps.DropForeignKey{Table: t.Name, ForeignKey: fk, TableDropped: true})
		}
	}
	for _, t := range removed {
		d.add(steps.DropTable{Table: t.Clone()})
	}

	for _, t := range added {
		var enums []schema.Enum
		for _, name := range t.UsedEnums() {
			if e := d.Desired.Enum(name); e != nil {
				enums = append(enums, schema.Enum{Name: e.Name, Variants: slices.Clone(e.Variants)})
			}
		}
		table := t.Clone()
		for i, fk := range table.ForeignKeys {
			table.ForeignKeys[i] = d.currentForeignKey(table.Name, fk)
		}
		d.add(steps.CreateTable{Table: table, Enums: enums})
	}
	for _, t := range added {
		for _, fk := range t.ForeignKeys {
			d.add(steps.AddForeignKey{Table: t.Name, ForeignKey: d.currentForeignKey(t.Name, fk), NewTable: true})
		}
	}
}

// TableColumns compares the columns of every table present in both schemas.
//
// Added columns keep desired declaration order, dropped columns current
// declaration order. Changed columns yield one AlterColumn carrying both
// definitions and the set of changed properties, so the classifier can reason
// about the transition. Steps on existing tables use the table and column names
// as they exist in the database, which only matters with case-insensitive
// matching.
//
// A primary key that differs in columns or column order yields one
// AlterPrimaryKey after the column steps of the table.
func TableColumns(d *Diff) {
	_, _, kept := d.tables()
	for _, pair := range kept {
		cur, des := pair.current, pair.desired

		currentCols := make(map[string]*schema.Column, len(cur.Columns))
		for i := range cur.Columns {
			currentCols[d.key(cur.Columns[i].Name)] = &cur.Columns[i]
		}
		desiredCols := make(map[string]*schema.Column, len(des.Columns))
		for i := range des.Columns {
			desiredCols[d.key(des.Columns[i].Name)] = &des.Columns[i]
		}

		for _, col := range cur.Columns {
			if _, ok := desiredCols[d.key(col.Name)]; !ok {
				d.add(steps.DropColumn{Table: cur.Name, Column: col.Clone()})
			}
		}

		for _, col := range des.Columns {
			prev, ok := currentCols[d.key(col.Name)]
			if !ok {
				d.add(steps.AddColumn{Table: cur.Name, Column: col.Clone(), Enum: d.desiredEnum(col.Type)})
				continue
			}
			changes := prev.Diff(col)
			if len(changes) == 0 {
				continue
			}
			next := col.Clone()
			next.Name = prev.Name
			alter := steps.AlterColumn{
				Table:    cur.Name,
				Previous: prev.Clone(),
				Next:     next,
				Changes:  changes,
				Enum:     d.desiredEnum(col.Type),
			}
			if alter.HasChange(schema.ChangeType) {
				d.retyped[d.columnKey(cur.Name, prev.Name)] = true
			}
			d.add(alter)
		}

		if !slices.Equal(d.keys(cur.PrimaryKey), d.keys(des.PrimaryKey)) {
			next := make([]string, len(des.PrimaryKey))
			for i, name := range des.PrimaryKey {
				next[i] = name
				if prev, ok := currentCols[d.key(name)]; ok {
					next[i] = prev.Name
				}
			}
			d.rekeyed[d.key(cur.Name)] = slices.Clone(cur.PrimaryKey)
			d.add(steps.AlterPrimaryKey{Table: cur.Name, Previous: slices.Clone(cur.PrimaryKey), Next: next})
		}
	}
}

func (d *Diff) desiredEnum(t schema.ColumnType) *schema.Enum {
	if t.Kind != schema.KindEnum {
		return nil
	}
	e := d.Desired.Enum(t.EnumName)
	if e == nil {
		return nil
	}
	return &schema.Enum{Name: e.Name, Variants: slices.Clone(e.Variants)}
}

// Enums compares the enum sets of both schemas.
//
// Whole enums are created or dropped with CreateEnum and DropEnum. Enums present
// in both schemas are never replaced wholesale: each removed variant yields one
// RemoveEnumVariant and each added variant one AddEnumVariant, so every variant
// removal can be classified on its own. Removals are emitted before additions.
//
// Every variant step carries the variant list as it stands once the step has run
// (removals in current order, additions in desired order, so the last step leaves
// exactly the desired list) and the existing columns that keep using the enum.
// An enum whose variants only change position yields one ReorderEnumVariants.
func Enums(d *Diff) {
	current := make(map[string]*schema.Enum, len(d.Current.Enums))
	for i := range d.Current.Enums {
		current[d.key(d.Current.Enums[i].Name)] = &d.Current.Enums[i]
	}
	desired := make(map[string]*schema.Enum, len(d.Desired.Enums))
	for i := range d.Desired.Enums {
		desired[d.key(d.Desired.Enums[i].Name)] = &d.Desired.Enums[i]
	}

	var added, removed []string
	for key := range desired {
		if _, ok := current[key]; !ok {
			added = append(added, key)
		}
	}
	for key := range current {
		if _, ok := desired[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	for _, key := range added {
		e := desired[key]
		d.add(steps.CreateEnum{Enum: schema.Enum{Name: e.Name, Variants: slices.Clone(e.Variants)}})
	}

	var kept []string
	for key := range desired {
		if _, ok := current[key]; ok {
			kept = append(kept, key)
		}
	}
	sort.Strings(kept)
	for _, key := range kept {
		EnumVariants(d, current[key], desired[key])
	}

	for _, key := range removed {
		e := current[key]
		d.add(steps.DropEnum{Enum: schema.Enum{Name: e.Name, Variants: slices.Clone(e.Variants)}})
	}
}

// EnumVariants compares the variants of an enum present in both schemas.
func EnumVariants(d *Diff, cur, des *schema.Enum) {
	usages := d.stableUsages(cur.Name, des.Name)

	variants := slices.Clone(cur.Variants)
	for _, v := range cur.Variants {
		if des.HasVariant(v) {
			continue
		}
		variants = slices.DeleteFunc(variants, func(s string) bool { return s == v })
		d.add(steps.RemoveEnumVariant{
			Enum:     cur.Name,
			Variant:  v,
			Variants: slices.Clone(variants),
			Usages:   usages,
		})
	}

	present := make(map[string]bool, len(variants))
	for _, v := range variants {
		present[v] = true
	}
	added := false
	for _, v := range des.Variants {
		if present[v] {
			continue
		}
		present[v] = true
		var list []string
		for _, dv := range des.Variants {
			if present[dv] {
				list = append(list, dv)
			}
		}
		d.add(steps.AddEnumVariant{
			Enum:     cur.Name,
			Variant:  v,
			Variants: list,
			Usages:   usages,
		})
		added = true
	}

	// The last addition already leaves the desired order.
	if !added && !slices.Equal(variants, des.Variants) {
		d.add(steps.ReorderEnumVariants{
			Enum:     cur.Name,
			Previous: variants,
			Variants: slices.Clone(des.Variants),
			Usages:   usages,
		})
	}
}

// stableUsages returns the current definitions of the columns that use the enum
// in both schemas. Columns that start or stop using the enum are migrated by
// their own steps, which the orderer places around the variant steps.
func (d *Diff) stableUsages(currentEnum, desiredEnum string) []schema.EnumUsage {
	var usages []schema.EnumUsage
	_, _, kept := d.tables()
	for _, pair := range kept {
		for _, col := range pair.current.Columns {
			if col.Type.Kind != schema.KindEnum || col.Type.EnumName != currentEnum {
				continue
			}
			i := slices.IndexFunc(pair.desired.Columns, func(c schema.Column) bool { return d.key(c.Name) == d.key(col.Name) })
			if i < 0 {
				continue
			}
			next := pair.desired.Columns[i].Type
			if next.Kind == schema.KindEnum && next.EnumName == desiredEnum {
				usages = append(usages, schema.EnumUsage{Table: pair.current.Name, Column: col.Clone()})
			}
		}
	}
	return usages
}

// Indexes compares the indexes of every table present in both schemas by
// structure (columns, uniqueness and predicate). Names are ignored, so an index
// renamed in the desired schema is kept as is.
//
// Indexes of added tables are created with the table; indexes of removed tables
// disappear with it.
func Indexes(d *Diff) {
	_, _, kept := d.tables()
	for _, pair := range kept {
		cur, des := pair.current, pair.desired
		for _, idx := range cur.Indexes {
			if !slices.ContainsFunc(des.Indexes, func(o schema.Index) bool { return d.sameIndex(idx, o) }) {
				d.add(steps.DropIndex{Table: cur.Name, Index: idx})
			}
		}
		for _, idx := range des.Indexes {
			if !slices.ContainsFunc(cur.Indexes, func(o schema.Index) bool { return d.sameIndex(idx, o) }) {
				d.add(steps.CreateIndex{Table: cur.Name, Index: idx})
			}
		}
	}
}

// ForeignKeys compares the foreign keys of every table present in both schemas
// by structure (columns, referenced table and columns, referential actions).
//
// A foreign key that is structurally unchanged is still dropped and re-added
// when one of its local or referenced columns changes type, since most
// databases refuse to retype a column taking part in a constraint. The same
// holds for foreign keys referencing a table whose primary key changes and for
// those sharing columns with the primary key being replaced.
//
// Added foreign keys use the table and column names as they exist in the
// database. Must run after TableColumns.
func ForeignKeys(d *Diff) {
	_, _, kept := d.tables()
	for _, pair := range kept {
		cur, des := pair.current, pair.desired
		for _, fk := range cur.ForeignKeys {
			matched := slices.ContainsFunc(des.ForeignKeys, func(o schema.ForeignKey) bool { return d.sameForeignKey(fk, o) })
			if !matched || d.touchesRetyped(cur.Name, fk) || d.touchesRekeyed(cur.Name, fk) {
				d.add(steps.DropForeignKey{Table: cur.Name, ForeignKey: fk})
			}
		}
		for _, fk := range des.ForeignKeys {
			matched := slices.ContainsFunc(cur.ForeignKeys, func(o schema.ForeignKey) bool { return d.sameForeignKey(fk, o) })
			if !matched || d.touchesRetyped(cur.Name, fk) || d.touchesRekeyed(cur.Name, fk) {
				d.add(steps.AddForeignKey{Table: cur.Name, ForeignKey: d.currentForeignKey(cur.Name, fk)})
			}
		}
	}
}

func (d *Diff) touchesRetyped(table string, fk schema.ForeignKey) bool {
	for _, col := range fk.Columns {
		if d.retyped[d.columnKey(table, col)] {
			return true
		}
	}
	for _, col := range fk.ReferencedColumns {
		if d.retyped[d.columnKey(fk.ReferencedTable, col)] {
			return true
		}
	}
	return false
}

func (d *Diff) touchesRekeyed(table string, fk schema.ForeignKey) bool {
	if _, ok := d.rekeyed[d.key(fk.ReferencedTable)]; ok {
		return true
	}
	previous, ok := d.rekeyed[d.key(table)]
	if !ok {
		return false
	}
	previous = d.keys(previous)
	for _, col := range fk.Columns {
		if slices.Contains(previous, d.key(col)) {
			return true
		}
	}
	return false
}

// currentForeignKey spells the columns and the referenced table of fk the way
// they exist in the current schema. Names missing from it are kept.
func (d *Diff) currentForeignKey(table string, fk schema.ForeignKey) schema.ForeignKey {
	fk.Columns = d.currentColumns(table, fk.Columns)
	if t := d.currentTable(fk.ReferencedTable); t != nil {
		fk.ReferencedTable = t.Name
	}
	fk.ReferencedColumns = d.currentColumns(fk.ReferencedTable, fk.ReferencedColumns)
	return fk
}

func (d *Diff) currentTable(name string) *schema.Table {
	for i := range d.Current.Tables {
		if d.key(d.Current.Tables[i].Name) == d.key(name) {
			return &d.Current.Tables[i]
		}
	}
	return nil
}

func (d *Diff) currentColumns(table string, names []string) []string {
	out := slices.Clone(names)
	t := d.currentTable(table)
	if t == nil {
		return out
	}
	for i, name := range out {
		j := slices.IndexFunc(t.Columns, func(c schema.Column) bool { return d.key(c.Name) == d.key(name) })
		if j >= 0 {
			out[i] = t.Columns[j].Name
		}
	}
	return out
}

func (d *Diff) sameIndex(a, b schema.Index) bool {
	if d.Opts == nil || !d.Opts.CaseInsensitiveNames {
		return a.SameStructure(b)
	}
	a.Columns = d.keys(a.Columns)
	b.Columns = d.keys(b.Columns)
	return a.SameStructure(b)
}

func (d *Diff) sameForeignKey(a, b schema.ForeignKey) bool {
	if d.Opts == nil || !d.Opts.CaseInsensitiveNames {
		return a.SameStructure(b)
	}
	a.Columns, b.Columns = d.keys(a.Columns), d.keys(b.Columns)
	a.ReferencedColumns, b.ReferencedColumns = d.keys(a.ReferencedColumns), d.keys(b.ReferencedColumns)
	a.ReferencedTable, b.ReferencedTable = d.key(a.ReferencedTable), d.key(b.ReferencedTable)
	return a.SameStructure(b)
}

func (d *Diff) keys(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.key(n)
	}
	return out
}
