package postgres_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/core/renderer"
	rpostgres "github.com/stokaro/schemapush/core/renderer/dialects/postgres"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner/dialects/postgres"
	"github.com/stokaro/schemapush/migration/steps"
)

func render(c *qt.C, s steps.Step) []string {
	nodes, err := postgres.New().Plan(s)
	c.Assert(err, qt.IsNil)
	stmts, err := renderer.Statements(rpostgres.New(), nodes...)
	c.Assert(err, qt.IsNil)
	return stmts
}

func TestPlanner_Plan(t *testing.T) {
	tests := []struct {
		name     string
		step     steps.Step
		expected []string
	}{
		{
			name: "create table with enum, identity and index",
			step: steps.CreateTable{Table: schema.Table{
				Name: "Cat",
				Columns: []schema.Column{
					{Name: "id", Type: schema.Int(), AutoIncrement: true},
					{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("HAPPY")},
					{Name: "name", Type: schema.String(191), Nullable: true},
					{Name: "createdAt", Type: schema.DateTime(), Default: schema.Expression("now")},
					{Name: "ownerId", Type: schema.Int(), Nullable: true},
				},
				PrimaryKey: []string{"id"},
				Indexes:    []schema.Index{{Columns: []string{"name"}, Unique: true}},
				ForeignKeys: []schema.ForeignKey{
					{Columns: []string{"ownerId"}, ReferencedTable: "Owner", ReferencedColumns: []string{"id"}},
				},
			}},
			expected: []string{
				"CREATE TABLE \"Cat\" (\n" +
					"    \"id\" INTEGER NOT NULL GENERATED BY DEFAULT AS IDENTITY,\n" +
					"    \"mood\" \"CatMood\" NOT NULL DEFAULT 'HAPPY',\n" +
					"    \"name\" VARCHAR(191),\n" +
					"    \"createdAt\" TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
					"    \"ownerId\" INTEGER,\n" +
					"    CONSTRAINT \"Cat_pkey\" PRIMARY KEY (\"id\")\n" +
					")",
				`CREATE UNIQUE INDEX "Cat_name_key" ON "Cat" ("name")`,
			},
		},
		{
			name:     "drop table",
			step:     steps.DropTable{Table: schema.Table{Name: "Cat"}},
			expected: []string{`DROP TABLE "Cat"`},
		},
		{
			name: "add column with literal defaults",
			step: steps.AddColumn{Table: "Cat", Column: schema.Column{
				Name: "nick", Type: schema.String(0), Default: schema.Literal("it's Tom"),
			}},
			expected: []string{`ALTER TABLE "Cat" ADD COLUMN "nick" TEXT NOT NULL DEFAULT 'it''s Tom'`},
		},
		{
			name: "add boolean and decimal columns",
			step: steps.AddColumn{Table: "Cat", Column: schema.Column{
				Name: "indoor", Type: schema.Boolean(), Default: schema.Literal("true"),
			}},
			expected: []string{`ALTER TABLE "Cat" ADD COLUMN "indoor" BOOLEAN NOT NULL DEFAULT true`},
		},
		{
			name:     "drop column",
			step:     steps.DropColumn{Table: "Cat", Column: schema.Column{Name: "age"}},
			expected: []string{`ALTER TABLE "Cat" DROP COLUMN "age"`},
		},
		{
			name: "string to enum casts through text",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "name", Type: schema.String(0)},
				Next:     schema.Column{Name: "name", Type: schema.EnumType("CatName")},
				Changes:  []schema.ColumnChange{schema.ChangeType},
			},
			expected: []string{`ALTER TABLE "Cat" ALTER COLUMN "name" TYPE "CatName" USING "name"::text::"CatName"`},
		},
		{
			name: "type change restores the default",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "age", Type: schema.Int(), Default: schema.Literal("0")},
				Next:     schema.Column{Name: "age", Type: schema.BigInt(), Default: schema.Literal("0")},
				Changes:  []schema.ColumnChange{schema.ChangeType},
			},
			expected: []string{`ALTER TABLE "Cat" ALTER COLUMN "age" DROP DEFAULT, ALTER COLUMN "age" TYPE BIGINT USING "age"::BIGINT, ALTER COLUMN "age" SET DEFAULT 0`},
		},
		{
			name: "required with default backfills nulls",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "name", Type: schema.String(0), Nullable: true},
				Next:     schema.Column{Name: "name", Type: schema.String(0), Default: schema.Literal("Tom")},
				Changes:  []schema.ColumnChange{schema.ChangeNullability, schema.ChangeDefault},
			},
			expected: []string{
				`UPDATE "Cat" SET "name" = 'Tom' WHERE "name" IS NULL`,
				`ALTER TABLE "Cat" ALTER COLUMN "name" SET NOT NULL, ALTER COLUMN "name" SET DEFAULT 'Tom'`,
			},
		},
		{
			name: "optional and default dropped",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "name", Type: schema.String(0), Default: schema.Literal("Tom")},
				Next:     schema.Column{Name: "name", Type: schema.String(0), Nullable: true},
				Changes:  []schema.ColumnChange{schema.ChangeNullability, schema.ChangeDefault},
			},
			expected: []string{`ALTER TABLE "Cat" ALTER COLUMN "name" DROP NOT NULL, ALTER COLUMN "name" DROP DEFAULT`},
		},
		{
			name: "autoincrement added",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "id", Type: schema.Int()},
				Next:     schema.Column{Name: "id", Type: schema.Int(), AutoIncrement: true},
				Changes:  []schema.ColumnChange{schema.ChangeAutoIncrement},
			},
			expected: []string{`ALTER TABLE "Cat" ALTER COLUMN "id" ADD GENERATED BY DEFAULT AS IDENTITY`},
		},
		{
			name:     "create enum",
			step:     steps.CreateEnum{Enum: schema.Enum{Name: "CatMood", Variants: []string{"HAPPY", "HUNGRY"}}},
			expected: []string{`CREATE TYPE "CatMood" AS ENUM ('HAPPY', 'HUNGRY')`},
		},
		{
			name:     "drop enum",
			step:     steps.DropEnum{Enum: schema.Enum{Name: "CatMood"}},
			expected: []string{`DROP TYPE "CatMood"`},
		},
		{
			name: "remove variant recreates the type",
			step: steps.RemoveEnumVariant{
				Enum:     "CatMood",
				Variant:  "HUNGRY",
				Variants: []string{"HAPPY"},
				Usages: []schema.EnumUsage{
					{Table: "Cat", Column: schema.Column{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("HAPPY")}},
					{Table: "Dog", Column: schema.Column{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("HUNGRY")}},
				},
			},
			expected: []string{
				`ALTER TYPE "CatMood" RENAME TO "CatMood_old"`,
				`CREATE TYPE "CatMood" AS ENUM ('HAPPY')`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" DROP DEFAULT`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" TYPE "CatMood" USING "mood"::text::"CatMood"`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" SET DEFAULT 'HAPPY'`,
				`ALTER TABLE "Dog" ALTER COLUMN "mood" DROP DEFAULT`,
				`ALTER TABLE "Dog" ALTER COLUMN "mood" TYPE "CatMood" USING "mood"::text::"CatMood"`,
				`DROP TYPE "CatMood_old"`,
			},
		},
		{
			name: "add variant recreates the type",
			step: steps.AddEnumVariant{
				Enum:     "CatMood",
				Variant:  "SLEEPY",
				Variants: []string{"HAPPY", "SLEEPY"},
			},
			expected: []string{
				`ALTER TYPE "CatMood" RENAME TO "CatMood_old"`,
				`CREATE TYPE "CatMood" AS ENUM ('HAPPY', 'SLEEPY')`,
				`DROP TYPE "CatMood_old"`,
			},
		},
		{
			name: "reorder variants recreates the type",
			step: steps.ReorderEnumVariants{
				Enum:     "CatMood",
				Previous: []string{"HAPPY", "HUNGRY"},
				Variants: []string{"HUNGRY", "HAPPY"},
				Usages: []schema.EnumUsage{
					{Table: "Cat", Column: schema.Column{Name: "mood", Type: schema.EnumType("CatMood"), Default: schema.Variant("HAPPY")}},
				},
			},
			expected: []string{
				`ALTER TYPE "CatMood" RENAME TO "CatMood_old"`,
				`CREATE TYPE "CatMood" AS ENUM ('HUNGRY', 'HAPPY')`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" DROP DEFAULT`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" TYPE "CatMood" USING "mood"::text::"CatMood"`,
				`ALTER TABLE "Cat" ALTER COLUMN "mood" SET DEFAULT 'HAPPY'`,
				`DROP TYPE "CatMood_old"`,
			},
		},
		{
			name:     "replace primary key",
			step:     steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}, Next: []string{"id", "name"}},
			expected: []string{`ALTER TABLE "Cat" DROP CONSTRAINT "Cat_pkey", ADD CONSTRAINT "Cat_pkey" PRIMARY KEY ("id", "name")`},
		},
		{
			name:     "add primary key",
			step:     steps.AlterPrimaryKey{Table: "Cat", Next: []string{"id"}},
			expected: []string{`ALTER TABLE "Cat" ADD CONSTRAINT "Cat_pkey" PRIMARY KEY ("id")`},
		},
		{
			name:     "drop primary key",
			step:     steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}},
			expected: []string{`ALTER TABLE "Cat" DROP CONSTRAINT "Cat_pkey"`},
		},
		{
			name: "add foreign key",
			step: steps.AddForeignKey{Table: "Cat", ForeignKey: schema.ForeignKey{
				Columns:           []string{"ownerId"},
				ReferencedTable:   "Owner",
				ReferencedColumns: []string{"id"},
				OnDelete:          schema.SetNull,
				OnUpdate:          schema.NoAction,
			}},
			expected: []string{`ALTER TABLE "Cat" ADD CONSTRAINT "Cat_ownerId_fkey" FOREIGN KEY ("ownerId") REFERENCES "Owner" ("id") ON DELETE SET NULL`},
		},
		{
			name: "drop foreign key",
			step: steps.DropForeignKey{Table: "Cat", ForeignKey: schema.ForeignKey{
				Name: "cat_owner", Columns: []string{"ownerId"}, ReferencedTable: "Owner", ReferencedColumns: []string{"id"},
			}},
			expected: []string{`ALTER TABLE "Cat" DROP CONSTRAINT "cat_owner"`},
		},
		{
			name:     "partial index",
			step:     steps.CreateIndex{Table: "Cat", Index: schema.Index{Columns: []string{"name"}, Where: `"name" IS NOT NULL`}},
			expected: []string{`CREATE INDEX "Cat_name_idx" ON "Cat" ("name") WHERE "name" IS NOT NULL`},
		},
		{
			name:     "drop index",
			step:     steps.DropIndex{Table: "Cat", Index: schema.Index{Columns: []string{"name"}, Unique: true}},
			expected: []string{`DROP INDEX "Cat_name_key"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(render(c, tt.step), qt.DeepEquals, tt.expected)
		})
	}
}

func TestPlanner_UnexpectedStep(t *testing.T) {
	c := qt.New(t)

	_, err := postgres.New().Plan(steps.RawScript{Script: "SELECT 1"})

	c.Assert(err, qt.ErrorMatches, `unexpected step type steps.RawScript`)
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		typ      schema.ColumnType
		expected string
	}{
		{schema.Int(), "INTEGER"},
		{schema.BigInt(), "BIGINT"},
		{schema.Float(), "DOUBLE PRECISION"},
		{schema.Decimal(10, 2), "DECIMAL(10,2)"},
		{schema.ColumnType{Kind: schema.KindDecimal}, "DECIMAL(65,30)"},
		{schema.String(191), "VARCHAR(191)"},
		{schema.String(0), "TEXT"},
		{schema.Boolean(), "BOOLEAN"},
		{schema.DateTime(), "TIMESTAMP(3)"},
		{schema.JSON(), "JSONB"},
		{schema.Bytes(), "BYTEA"},
		{schema.EnumType("CatMood"), `"CatMood"`},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			qt.New(t).Assert(postgres.ColumnType(tt.typ), qt.Equals, tt.expected)
		})
	}
}
