package planner_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/config"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner"
	"github.com/stokaro/schemapush/migration/schemadiff"
	"github.com/stokaro/schemapush/migration/steps"
)

func describe(list []steps.Step) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.String()
	}
	return out
}

var ownerFK = schema.ForeignKey{Columns: []string{"ownerId"}, ReferencedTable: "Owner", ReferencedColumns: []string{"id"}}

var toyFK = schema.ForeignKey{Columns: []string{"catId"}, ReferencedTable: "Cat", ReferencedColumns: []string{"id"}}

func enumColumn(name, enum string) schema.Column {
	return schema.Column{Name: name, Type: schema.EnumType(enum)}
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    []steps.Step
		expected []string
	}{
		{
			name: "tables before foreign keys",
			input: []steps.Step{
				steps.AddForeignKey{Table: "Cat", ForeignKey: ownerFK, NewTable: true},
				steps.CreateTable{Table: schema.Table{Name: "Cat"}},
				steps.CreateTable{Table: schema.Table{Name: "Owner"}},
			},
			expected: []string{
				"create table Cat",
				"create table Owner",
				"add foreign key Cat.(ownerId) -> Owner",
			},
		},
		{
			name: "foreign keys dropped before tables",
			input: []steps.Step{
				steps.DropTable{Table: schema.Table{Name: "Owner"}},
				steps.DropForeignKey{Table: "Cat", ForeignKey: ownerFK, TableDropped: true},
				steps.DropTable{Table: schema.Table{Name: "Cat"}},
			},
			expected: []string{
				"drop foreign key Cat.(ownerId) -> Owner",
				"drop table Owner",
				"drop table Cat",
			},
		},
		{
			name: "removal before addition reusing the name",
			input: []steps.Step{
				steps.CreateTable{Table: schema.Table{Name: "Cat"}},
				steps.AddColumn{Table: "Dog", Column: schema.Column{Name: "age"}},
				steps.DropColumn{Table: "Dog", Column: schema.Column{Name: "age"}},
				steps.DropTable{Table: schema.Table{Name: "Cat"}},
			},
			expected: []string{
				"drop column Dog.age",
				"add column Dog.age",
				"drop table Cat",
				"create table Cat",
			},
		},
		{
			name: "enum created before columns use it",
			input: []steps.Step{
				steps.AddColumn{Table: "Cat", Column: enumColumn("mood", "CatMood")},
				steps.CreateTable{Table: schema.Table{Name: "Dog", Columns: []schema.Column{enumColumn("mood", "CatMood")}}},
				steps.CreateEnum{Enum: schema.Enum{Name: "CatMood", Variants: []string{"HAPPY"}}},
			},
			expected: []string{
				"create enum CatMood",
				"add column Cat.mood",
				"create table Dog",
			},
		},
		{
			name: "enum dropped after columns stop using it",
			input: []steps.Step{
				steps.DropEnum{Enum: schema.Enum{Name: "CatMood"}},
				steps.DropColumn{Table: "Cat", Column: enumColumn("mood", "CatMood")},
			},
			expected: []string{
				"drop column Cat.mood",
				"drop enum CatMood",
			},
		},
		{
			name: "variant removals before additions",
			input: []steps.Step{
				steps.AddEnumVariant{Enum: "CatMood", Variant: "SLEEPY"},
				steps.RemoveEnumVariant{Enum: "CatMood", Variant: "HAPPY"},
				steps.AlterColumn{
					Table:    "Cat",
					Previous: enumColumn("mood", "CatMood"),
					Next:     schema.Column{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("SLEEPY")},
					Changes:  []schema.ColumnChange{schema.ChangeDefault},
				},
			},
			expected: []string{
				"remove variant HAPPY from enum CatMood",
				"add variant SLEEPY to enum CatMood",
				"alter column Cat.mood (default)",
			},
		},
		{
			name: "indexes dropped before their columns and created after",
			input: []steps.Step{
				steps.CreateIndex{Table: "Cat", Index: schema.Index{Columns: []string{"age"}}},
				steps.DropColumn{Table: "Cat", Column: schema.Column{Name: "name"}},
				steps.AddColumn{Table: "Cat", Column: schema.Column{Name: "age"}},
				steps.DropIndex{Table: "Cat", Index: schema.Index{Name: "Cat_name_idx", Columns: []string{"name"}}},
			},
			expected: []string{
				"add column Cat.age",
				"create index on Cat (age)",
				"drop index on Cat (name)",
				"drop column Cat.name",
			},
		},
		{
			name: "primary key changes after its new columns and between foreign key drop and add",
			input: []steps.Step{
				steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}, Next: []string{"id", "name"}},
				steps.AddForeignKey{Table: "Toy", ForeignKey: toyFK},
				steps.DropForeignKey{Table: "Toy", ForeignKey: toyFK},
				steps.AddColumn{Table: "Cat", Column: schema.Column{Name: "name"}},
			},
			expected: []string{
				"drop foreign key Toy.(catId) -> Cat",
				"add column Cat.name",
				"alter primary key Cat (id) -> (id, name)",
				"add foreign key Toy.(catId) -> Cat",
			},
		},
		{
			name: "primary key released before its old columns change",
			input: []steps.Step{
				steps.DropColumn{Table: "Cat", Column: schema.Column{Name: "legacyId"}},
				steps.AlterColumn{
					Table:    "Cat",
					Previous: schema.Column{Name: "code"},
					Next:     schema.Column{Name: "code", Nullable: true},
					Changes:  []schema.ColumnChange{schema.ChangeNullability},
				},
				steps.DropIndex{Table: "Cat", Index: schema.Index{Columns: []string{"legacyId"}}},
				steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"legacyId", "code"}, Next: []string{"id"}},
			},
			expected: []string{
				"drop index on Cat (legacyId)",
				"alter primary key Cat (legacyId, code) -> (id)",
				"drop column Cat.legacyId",
				"alter column Cat.code (nullable)",
			},
		},
		{
			name: "enum reordered after columns stop using it and before others start",
			input: []steps.Step{
				steps.AddColumn{Table: "Cat", Column: enumColumn("mood", "CatMood")},
				steps.ReorderEnumVariants{Enum: "CatMood", Previous: []string{"HAPPY", "HUNGRY"}, Variants: []string{"HUNGRY", "HAPPY"}},
				steps.DropColumn{Table: "Dog", Column: enumColumn("mood", "CatMood")},
			},
			expected: []string{
				"drop column Dog.mood",
				"reorder variants of enum CatMood",
				"add column Cat.mood",
			},
		},
		{
			name: "independent steps keep emission order",
			input: []steps.Step{
				steps.CreateTable{Table: schema.Table{Name: "B"}},
				steps.CreateTable{Table: schema.Table{Name: "A"}},
				steps.CreateEnum{Enum: schema.Enum{Name: "E"}},
			},
			expected: []string{
				"create table B",
				"create table A",
				"create enum E",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			got, err := planner.Order(tt.input)
			c.Assert(err, qt.IsNil)
			c.Assert(describe(got), qt.DeepEquals, tt.expected)
		})
	}
}

func TestOrder_DoesNotModifyInput(t *testing.T) {
	c := qt.New(t)

	input := []steps.Step{
		steps.AddForeignKey{Table: "Cat", ForeignKey: ownerFK},
		steps.CreateTable{Table: schema.Table{Name: "Owner"}},
	}
	_, err := planner.Order(input)
	c.Assert(err, qt.IsNil)
	c.Assert(input[0].Kind(), qt.Equals, steps.KindAddForeignKey)
}

func TestOrder_SelfReferencingTable(t *testing.T) {
	c := qt.New(t)

	desired := &schema.Schema{Tables: []schema.Table{{
		Name: "Employee",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Int()},
			{Name: "managerId", Type: schema.Int(), Nullable: true},
		},
		PrimaryKey:  []string{"id"},
		ForeignKeys: []schema.ForeignKey{{Columns: []string{"managerId"}, ReferencedTable: "Employee", ReferencedColumns: []string{"id"}}},
	}}}

	got, err := planner.Order(schemadiff.Compare(&schema.Schema{}, desired))
	c.Assert(err, qt.IsNil)
	c.Assert(describe(got), qt.DeepEquals, []string{
		"create table Employee",
		"add foreign key Employee.(managerId) -> Employee",
	})
}

func TestOrder_MutualForeignKeys(t *testing.T) {
	c := qt.New(t)

	desired := &schema.Schema{Tables: []schema.Table{
		{
			Name:        "A",
			Columns:     []schema.Column{{Name: "id", Type: schema.Int()}, {Name: "bId", Type: schema.Int(), Nullable: true}},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"bId"}, ReferencedTable: "B", ReferencedColumns: []string{"id"}}},
		},
		{
			Name:        "B",
			Columns:     []schema.Column{{Name: "id", Type: schema.Int()}, {Name: "aId", Type: schema.Int(), Nullable: true}},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"aId"}, ReferencedTable: "A", ReferencedColumns: []string{"id"}}},
		},
	}}

	got, err := planner.Order(schemadiff.Compare(&schema.Schema{}, desired))
	c.Assert(err, qt.IsNil)
	c.Assert(describe(got), qt.DeepEquals, []string{
		"create table A",
		"create table B",
		"add foreign key A.(bId) -> B",
		"add foreign key B.(aId) -> A",
	})

	// and the reverse drops both constraints before either table
	got, err = planner.Order(schemadiff.Compare(desired, &schema.Schema{}))
	c.Assert(err, qt.IsNil)
	c.Assert(describe(got), qt.DeepEquals, []string{
		"drop foreign key A.(bId) -> B",
		"drop foreign key B.(aId) -> A",
		"drop table A",
		"drop table B",
	})
}

func TestOrder_Cycle(t *testing.T) {
	c := qt.New(t)

	// Two columns swap enum types while both enums lose a variant: each variant
	// removal must come after one column change and before the other.
	input := []steps.Step{
		steps.RemoveEnumVariant{Enum: "E", Variant: "x"},
		steps.RemoveEnumVariant{Enum: "F", Variant: "y"},
		steps.AlterColumn{Table: "T", Previous: enumColumn("a", "E"), Next: enumColumn("a", "F"), Changes: []schema.ColumnChange{schema.ChangeType}},
		steps.AlterColumn{Table: "T", Previous: enumColumn("b", "F"), Next: enumColumn("b", "E"), Changes: []schema.ColumnChange{schema.ChangeType}},
		steps.CreateTable{Table: schema.Table{Name: "Unrelated"}},
	}

	got, err := planner.Order(input)
	c.Assert(got, qt.IsNil)
	c.Assert(errors.Is(err, planner.ErrCyclicDependency), qt.IsTrue)

	var cycleErr *planner.CycleError
	c.Assert(errors.As(err, &cycleErr), qt.IsTrue)
	c.Assert(cycleErr.Steps, qt.HasLen, 4)
	c.Assert(err, qt.ErrorMatches, `cyclic dependency between migration steps: remove variant x from enum E; .*`)
}

func TestOrder_CaseInsensitiveNames(t *testing.T) {
	c := qt.New(t)

	current := &schema.Schema{Tables: []schema.Table{{
		Name:       "Owner",
		Columns:    []schema.Column{{Name: "id", Type: schema.Int()}},
		PrimaryKey: []string{"id"},
	}}}
	desired := &schema.Schema{Tables: []schema.Table{
		{
			Name:       "owner",
			Columns:    []schema.Column{{Name: "ID", Type: schema.Int()}, {Name: "tag", Type: schema.String(32)}},
			PrimaryKey: []string{"ID"},
			Indexes:    []schema.Index{{Name: "owner_tag_key", Columns: []string{"tag"}, Unique: true}},
		},
		{
			Name:        "Toy",
			Columns:     []schema.Column{{Name: "id", Type: schema.Int()}, {Name: "ownerTag", Type: schema.String(32)}},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"ownerTag"}, ReferencedTable: "owner", ReferencedColumns: []string{"tag"}}},
		},
	}}

	opts := config.DefaultCompareOptions().WithCaseInsensitiveNames()
	got, err := planner.Order(schemadiff.CompareWithOptions(current, desired, opts))
	c.Assert(err, qt.IsNil)
	c.Assert(describe(got), qt.DeepEquals, []string{
		"create table Toy",
		"add column Owner.tag",
		"create index on Owner (tag)",
		"add foreign key Toy.(ownerTag) -> Owner",
	})
}
