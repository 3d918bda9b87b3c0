package ast_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/core/ast"
	"github.com/stokaro/schemapush/core/ast/mocks"
)

var errBoom = errors.New("boom")

func TestCreateTableNode(t *testing.T) {
	t.Run("NewCreateTable creates empty table", func(t *testing.T) {
		c := qt.New(t)
		table := ast.NewCreateTable("Cat")

		c.Assert(table.Name, qt.Equals, "Cat")
		c.Assert(table.Columns, qt.HasLen, 0)
		c.Assert(table.Constraints, qt.HasLen, 0)
		c.Assert(table.Options, qt.HasLen, 0)
	})

	t.Run("fluent API methods work correctly", func(t *testing.T) {
		c := qt.New(t)
		table := ast.NewCreateTable("Cat").
			AddColumn(ast.NewColumn("id", "INTEGER").SetPrimary().SetAutoIncrement()).
			AddColumn(ast.NewColumn("name", "TEXT").SetNotNull().SetDefault("'Tom'")).
			AddConstraint(ast.NewForeignKeyConstraint("Cat_ownerId_fkey", []string{"ownerId"}, &ast.ForeignKeyRef{
				Table:   "Owner",
				Columns: []string{"id"},
			})).
			SetOption("ENGINE", "InnoDB")

		c.Assert(table.Columns, qt.HasLen, 2)
		c.Assert(table.Columns[0].Primary, qt.IsTrue)
		c.Assert(table.Columns[0].Nullable, qt.IsFalse)
		c.Assert(table.Columns[0].AutoInc, qt.IsTrue)
		c.Assert(table.Columns[1].Default, qt.DeepEquals, &ast.DefaultValue{Value: "'Tom'"})
		c.Assert(table.Constraints[0].Type, qt.Equals, ast.ForeignKeyConstraint)
		c.Assert(table.Constraints[0].Reference.Table, qt.Equals, "Owner")
		c.Assert(table.Options["ENGINE"], qt.Equals, "InnoDB")
	})
}

func TestColumnNode(t *testing.T) {
	c := qt.New(t)

	col := ast.NewColumn("createdAt", "TIMESTAMP(3)")
	c.Assert(col.Nullable, qt.IsTrue)

	col.SetNotNull().SetDefaultExpression("CURRENT_TIMESTAMP")
	c.Assert(col.Nullable, qt.IsFalse)
	c.Assert(col.Default, qt.DeepEquals, &ast.DefaultValue{Expression: "CURRENT_TIMESTAMP"})
}

func TestConstraintConstructors(t *testing.T) {
	c := qt.New(t)

	pk := ast.NewPrimaryKeyConstraint("catId", "ownerId")
	c.Assert(pk.Type, qt.Equals, ast.PrimaryKeyConstraint)
	c.Assert(pk.Columns, qt.DeepEquals, []string{"catId", "ownerId"})
	c.Assert(pk.Reference, qt.IsNil)

	ref := &ast.ForeignKeyRef{Table: "Owner", Columns: []string{"id"}, OnDelete: "CASCADE"}
	fk := ast.NewForeignKeyConstraint("Cat_ownerId_fkey", []string{"ownerId"}, ref)
	c.Assert(fk.Type, qt.Equals, ast.ForeignKeyConstraint)
	c.Assert(fk.Name, qt.Equals, "Cat_ownerId_fkey")
	c.Assert(fk.Reference, qt.Equals, ref)
}

func TestAlterTypeNode(t *testing.T) {
	c := qt.New(t)

	node := ast.NewAlterType("CatMood").AddOperation(ast.NewRenameTypeOperation("CatMood_old"))

	c.Assert(node.Name, qt.Equals, "CatMood")
	c.Assert(node.Operations, qt.DeepEquals, []ast.AlterTypeOperation{&ast.RenameTypeOperation{NewName: "CatMood_old"}})
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name     string
		node     ast.Node
		expected string
	}{
		{name: "create table", node: ast.NewCreateTable("Cat"), expected: "CreateTable:Cat"},
		{name: "alter table", node: ast.NewAlterTable("Cat"), expected: "AlterTable:Cat"},
		{name: "column", node: ast.NewColumn("name", "TEXT"), expected: "Column:name"},
		{name: "constraint", node: ast.NewForeignKeyConstraint("fk", nil, nil), expected: "Constraint:fk"},
		{name: "index", node: ast.NewIndex("Cat_name_idx", "Cat", "name"), expected: "Index:Cat_name_idx"},
		{name: "drop index", node: ast.NewDropIndex("Cat_name_idx"), expected: "DropIndex:Cat_name_idx"},
		{name: "drop table", node: ast.NewDropTable("Cat").SetIfExists().SetCascade(), expected: "DropTable:Cat"},
		{name: "enum", node: ast.NewEnum("CatMood", "HAPPY"), expected: "Enum:CatMood"},
		{name: "alter type", node: ast.NewAlterType("CatMood"), expected: "AlterType:CatMood"},
		{name: "drop type", node: ast.NewDropType("CatMood").SetIfExists(), expected: "DropType:CatMood"},
		{name: "backfill", node: ast.NewBackfill("Cat", "name", &ast.DefaultValue{Value: "'Tom'"}), expected: "Backfill:Cat.name"},
		{name: "comment", node: ast.NewComment("hello"), expected: "Comment:hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			rec := &mocks.Recorder{}
			err := tt.node.Accept(rec)
			c.Assert(err, qt.IsNil)
			c.Assert(rec.Visited, qt.DeepEquals, []string{tt.expected})

			failing := &mocks.Recorder{Err: errBoom}
			err = tt.node.Accept(failing)
			c.Assert(err, qt.ErrorIs, errBoom)
		})
	}
}

func TestStatementList(t *testing.T) {
	t.Run("visits statements in order", func(t *testing.T) {
		c := qt.New(t)
		list := &ast.StatementList{Statements: []ast.Node{
			ast.NewEnum("CatMood", "HAPPY"),
			ast.NewCreateTable("Cat"),
			ast.NewIndex("Cat_name_idx", "Cat", "name").SetUnique().SetCondition(`"name" IS NOT NULL`),
		}}
		rec := &mocks.Recorder{}

		err := list.Accept(rec)

		c.Assert(err, qt.IsNil)
		c.Assert(rec.Visited, qt.DeepEquals, []string{"Enum:CatMood", "CreateTable:Cat", "Index:Cat_name_idx"})
	})

	t.Run("stops at the first error", func(t *testing.T) {
		c := qt.New(t)
		list := &ast.StatementList{Statements: []ast.Node{
			ast.NewCreateTable("Cat"),
			ast.NewCreateTable("Owner"),
		}}
		rec := &mocks.Recorder{Err: errBoom}

		err := list.Accept(rec)

		c.Assert(err, qt.ErrorMatches, "error visiting statement: boom")
		c.Assert(rec.Visited, qt.DeepEquals, []string{"CreateTable:Cat"})
	})
}
