package destructive_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/connector/memory"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/destructive"
	"github.com/stokaro/schemapush/migration/steps"
)

func seededCats(c *qt.C, rows ...memory.Row) *memory.Connector {
	conn := memory.New(memory.WithSchema(&schema.Schema{
		Tables: []schema.Table{{
			Name: "Cat",
			Columns: []schema.Column{
				{Name: "id", Type: schema.Int()},
				{Name: "name", Type: schema.String(0), Nullable: true},
				{Name: "age", Type: schema.BigInt(), Nullable: true},
			},
			PrimaryKey: []string{"id"},
		}},
	}))
	c.Assert(conn.InsertRows("Cat", rows...), qt.IsNil)
	return conn
}

var (
	nameCol = schema.Column{Name: "name", Type: schema.String(0), Nullable: true}
	ageCol  = schema.Column{Name: "age", Type: schema.BigInt(), Nullable: true}
)

func TestChecker_Check(t *testing.T) {
	oneCat := []memory.Row{{"id": 1, "name": "Felix"}}

	tests := []struct {
		name             string
		rows             []memory.Row
		steps            []steps.Step
		wantWarnings     []string
		wantUnexecutable []string
	}{
		{
			name:         "drop non-empty table",
			rows:         oneCat,
			steps:        []steps.Step{steps.DropTable{Table: schema.Table{Name: "Cat"}}},
			wantWarnings: []string{"You are about to drop the `Cat` table, which is not empty (1 rows)."},
		},
		{
			name:  "drop empty table",
			steps: []steps.Step{steps.DropTable{Table: schema.Table{Name: "Cat"}}},
		},
		{
			name:         "drop column of non-empty table",
			rows:         []memory.Row{{"id": 1, "name": "Felix"}, {"id": 2}},
			steps:        []steps.Step{steps.DropColumn{Table: "Cat", Column: nameCol}},
			wantWarnings: []string{"You are about to drop the column `name` on the `Cat` table, which still contains 1 non-null values."},
		},
		{
			name: "remove enum variant",
			steps: []steps.Step{
				steps.RemoveEnumVariant{Enum: "CatMood", Variant: "HUNGRY", Variants: []string{"HAPPY"}},
			},
			wantWarnings: []string{"The migration will remove the values [HUNGRY] on the enum `CatMood`. If these variants are still used in the database, the migration will fail."},
		},
		{
			name: "add enum variant",
			steps: []steps.Step{
				steps.AddEnumVariant{Enum: "CatMood", Variant: "SLEEPY", Variants: []string{"HAPPY", "SLEEPY"}},
			},
		},
		{
			name: "reorder enum variants",
			steps: []steps.Step{
				steps.ReorderEnumVariants{Enum: "CatMood", Previous: []string{"HAPPY", "HUNGRY"}, Variants: []string{"HUNGRY", "HAPPY"}},
			},
		},
		{
			name:         "primary key change on non-empty table",
			rows:         oneCat,
			steps:        []steps.Step{steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}, Next: []string{"id", "name"}}},
			wantWarnings: []string{"The primary key for the `Cat` table will be changed. If it partially fails, the table could be left without primary key constraint."},
		},
		{
			name:  "primary key change on empty table",
			steps: []steps.Step{steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}, Next: []string{"id", "name"}}},
		},
		{
			name:  "required column on non-empty table",
			rows:  oneCat,
			steps: []steps.Step{steps.AddColumn{Table: "Cat", Column: schema.Column{Name: "weight", Type: schema.Int()}}},
			wantUnexecutable: []string{
				"Added the required column `weight` to the `Cat` table without a default value. There are 1 rows in this table, it is not possible to execute this step.",
			},
		},
		{
			name:  "required column with default",
			rows:  oneCat,
			steps: []steps.Step{steps.AddColumn{Table: "Cat", Column: schema.Column{Name: "weight", Type: schema.Int(), Default: schema.Literal("0")}}},
		},
		{
			name: "string to enum cast",
			rows: oneCat,
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: nameCol,
				Next:    schema.Column{Name: "name", Type: schema.EnumType("CatMood"), Nullable: true},
				Changes: []schema.ColumnChange{schema.ChangeType},
			}},
			wantWarnings: []string{"You are about to alter the column `name` on the `Cat` table, which contains 1 non-null values. The data in that column will be cast from `String` to `Enum(\"CatMood\")`."},
		},
		{
			name: "narrowing without values",
			rows: []memory.Row{{"id": 1}},
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: ageCol,
				Next:    schema.Column{Name: "age", Type: schema.Int(), Nullable: true},
				Changes: []schema.ColumnChange{schema.ChangeType},
			}},
		},
		{
			name: "widening",
			rows: []memory.Row{{"id": 1, "name": "Felix"}},
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: schema.Column{Name: "name", Type: schema.String(10), Nullable: true},
				Next:    schema.Column{Name: "name", Type: schema.String(20), Nullable: true},
				Changes: []schema.ColumnChange{schema.ChangeType},
			}},
		},
		{
			name: "required with nulls and no default",
			rows: []memory.Row{{"id": 1, "name": "Felix"}, {"id": 2}},
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: nameCol,
				Next:    schema.Column{Name: "name", Type: schema.String(0)},
				Changes: []schema.ColumnChange{schema.ChangeNullability},
			}},
			wantUnexecutable: []string{"Made the column `name` on table `Cat` required, but there are 1 existing NULL values."},
		},
		{
			name: "required with nulls and default",
			rows: []memory.Row{{"id": 1, "name": "Felix"}, {"id": 2}},
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: nameCol,
				Next:    schema.Column{Name: "name", Type: schema.String(0), Default: schema.Literal("Tom")},
				Changes: []schema.ColumnChange{schema.ChangeNullability, schema.ChangeDefault},
			}},
			wantWarnings: []string{"You are about to make the column `name` on the `Cat` table required, which contains 2 rows; 1 NULL values will be set to the default \"Tom\"."},
		},
		{
			name: "required without nulls",
			rows: oneCat,
			steps: []steps.Step{steps.AlterColumn{
				Table: "Cat", Previous: nameCol,
				Next:    schema.Column{Name: "name", Type: schema.String(0)},
				Changes: []schema.ColumnChange{schema.ChangeNullability},
			}},
			wantWarnings: []string{"You are about to make the column `name` on the `Cat` table required, which contains 1 rows."},
		},
		{
			name: "table created in the same plan is empty",
			steps: []steps.Step{
				steps.CreateTable{Table: schema.Table{Name: "Dog", Columns: []schema.Column{{Name: "id", Type: schema.Int()}}}},
				steps.AddColumn{Table: "Dog", Column: schema.Column{Name: "weight", Type: schema.Int()}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			conn := seededCats(c, tt.rows...)

			report := destructive.NewChecker(conn).Check(context.Background(), tt.steps)

			var warnings, unexecutable []string
			for _, f := range report.Warnings {
				c.Assert(f.Severity, qt.Equals, destructive.Warning)
				warnings = append(warnings, f.Message)
			}
			for _, f := range report.Unexecutable {
				c.Assert(f.Severity, qt.Equals, destructive.Unexecutable)
				unexecutable = append(unexecutable, f.Message)
			}
			c.Assert(warnings, qt.DeepEquals, tt.wantWarnings)
			c.Assert(unexecutable, qt.DeepEquals, tt.wantUnexecutable)
			c.Assert(report.Empty(), qt.Equals, tt.wantWarnings == nil && tt.wantUnexecutable == nil)
		})
	}
}

func TestChecker_StepIdentity(t *testing.T) {
	c := qt.New(t)
	conn := seededCats(c, memory.Row{"id": 1, "name": "Felix"})

	report := destructive.NewChecker(conn).Check(context.Background(), []steps.Step{
		steps.CreateIndex{Table: "Cat", Index: schema.Index{Columns: []string{"name"}}},
		steps.DropColumn{Table: "Cat", Column: nameCol},
	})
	c.Assert(report.Warnings, qt.HasLen, 1)
	c.Assert(report.Warnings[0].Step, qt.Equals, 1)
	c.Assert(report.Warnings[0].Kind, qt.Equals, steps.KindDropColumn)
	c.Assert(report.Warnings[0].Degraded, qt.IsFalse)
}

func TestChecker_DegradedWhenCountsFail(t *testing.T) {
	c := qt.New(t)
	conn := seededCats(c)
	conn.FailCounts(errors.New("permission denied"))

	report := destructive.NewChecker(conn).Check(context.Background(), []steps.Step{
		steps.DropTable{Table: schema.Table{Name: "Cat"}},
		steps.AddColumn{Table: "Cat", Column: schema.Column{Name: "weight", Type: schema.Int(), Nullable: true}},
	})
	c.Assert(report.Unexecutable, qt.HasLen, 0)
	c.Assert(report.Warnings, qt.HasLen, 1)
	c.Assert(report.Warnings[0].Degraded, qt.IsTrue)
	c.Assert(report.Warnings[0].Message, qt.Equals,
		"Could not determine whether the `Cat` table contains data: failed to count rows: permission denied. Treating drop table Cat as destructive.")
}

func TestSeverity_MarshalText(t *testing.T) {
	c := qt.New(t)
	for sev, want := range map[destructive.Severity]string{
		destructive.Safe:         "safe",
		destructive.Warning:      "warning",
		destructive.Unexecutable: "unexecutable",
	} {
		got, err := sev.MarshalText()
		c.Assert(err, qt.IsNil)
		c.Assert(string(got), qt.Equals, want)
	}
}

func TestReport_Messages(t *testing.T) {
	c := qt.New(t)
	r := &destructive.Report{
		Warnings:     []destructive.Finding{{Message: "w"}},
		Unexecutable: []destructive.Finding{{Message: "u"}},
	}
	c.Assert(r.Messages(), qt.DeepEquals, []string{"w", "u"})
}
