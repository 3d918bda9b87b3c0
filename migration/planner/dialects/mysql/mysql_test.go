package mysql_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/core/renderer"
	rmysql "github.com/stokaro/schemapush/core/renderer/dialects/mysql"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/planner/dialects/mysql"
	"github.com/stokaro/schemapush/migration/steps"
)

func render(c *qt.C, s steps.Step) []string {
	nodes, err := mysql.New().Plan(s)
	c.Assert(err, qt.IsNil)
	stmts, err := renderer.Statements(rmysql.New(), nodes...)
	c.Assert(err, qt.IsNil)
	return stmts
}

func TestPlanner_Plan(t *testing.T) {
	moodEnum := schema.Enum{Name: "Cat_mood", Variants: []string{"HAPPY", "HUNGRY"}}

	tests := []struct {
		name     string
		step     steps.Step
		expected []string
	}{
		{
			name: "create table with inline enum and index",
			step: steps.CreateTable{
				Table: schema.Table{
					Name: "Cat",
					Columns: []schema.Column{
						{Name: "id", Type: schema.Int(), AutoIncrement: true},
						{Name: "mood", Type: schema.EnumType("Cat_mood"), Default: schema.Variant("HAPPY")},
						{Name: "bio", Type: schema.String(0), Nullable: true, Default: schema.Literal("none")},
						{Name: "indoor", Type: schema.Boolean(), Default: schema.Literal("true")},
						{Name: "createdAt", Type: schema.DateTime(), Default: schema.Expression("now")},
					},
					PrimaryKey: []string{"id"},
					Indexes:    []schema.Index{{Columns: []string{"createdAt"}}},
				},
				Enums: []schema.Enum{moodEnum},
			},
			expected: []string{
				"CREATE TABLE `Cat` (\n" +
					"    `id` INT NOT NULL AUTO_INCREMENT,\n" +
					"    `mood` ENUM('HAPPY','HUNGRY') NOT NULL DEFAULT 'HAPPY',\n" +
					"    `bio` LONGTEXT DEFAULT ('none'),\n" +
					"    `indoor` TINYINT(1) NOT NULL DEFAULT 1,\n" +
					"    `createdAt` DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),\n" +
					"    PRIMARY KEY (`id`)\n" +
					") COLLATE=utf8mb4_unicode_ci DEFAULT CHARSET=utf8mb4 ENGINE=InnoDB",
				"CREATE INDEX `Cat_createdAt_idx` ON `Cat` (`createdAt`)",
			},
		},
		{
			name: "add column",
			step: steps.AddColumn{Table: "Cat", Column: schema.Column{
				Name: "nick", Type: schema.String(191), Default: schema.Literal(`it's \Tom`),
			}},
			expected: []string{"ALTER TABLE `Cat` ADD COLUMN `nick` VARCHAR(191) NOT NULL DEFAULT 'it''s \\\\Tom'"},
		},
		{
			name:     "drop column",
			step:     steps.DropColumn{Table: "Cat", Column: schema.Column{Name: "age"}},
			expected: []string{"ALTER TABLE `Cat` DROP COLUMN `age`"},
		},
		{
			name: "alter column restates the definition",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "age", Type: schema.Int(), Nullable: true},
				Next:     schema.Column{Name: "age", Type: schema.BigInt(), Nullable: true},
				Changes:  []schema.ColumnChange{schema.ChangeType},
			},
			expected: []string{"ALTER TABLE `Cat` MODIFY COLUMN `age` BIGINT"},
		},
		{
			name: "required with default backfills nulls",
			step: steps.AlterColumn{
				Table:    "Cat",
				Previous: schema.Column{Name: "age", Type: schema.Int(), Nullable: true},
				Next:     schema.Column{Name: "age", Type: schema.Int(), Default: schema.Literal("0")},
				Changes:  []schema.ColumnChange{schema.ChangeNullability, schema.ChangeDefault},
			},
			expected: []string{
				"UPDATE `Cat` SET `age` = 0 WHERE `age` IS NULL",
				"ALTER TABLE `Cat` MODIFY COLUMN `age` INT NOT NULL DEFAULT 0",
			},
		},
		{
			name:     "create enum is a no-op",
			step:     steps.CreateEnum{Enum: moodEnum},
			expected: nil,
		},
		{
			name:     "drop enum is a no-op",
			step:     steps.DropEnum{Enum: moodEnum},
			expected: nil,
		},
		{
			name: "add variant restates the column",
			step: steps.AddEnumVariant{
				Enum:     "Cat_mood",
				Variant:  "SLEEPY",
				Variants: []string{"HAPPY", "HUNGRY", "SLEEPY"},
				Usages: []schema.EnumUsage{
					{Table: "Cat", Column: schema.Column{Name: "mood", Type: schema.EnumType("Cat_mood"), Default: schema.Variant("HAPPY")}},
				},
			},
			expected: []string{"ALTER TABLE `Cat` MODIFY COLUMN `mood` ENUM('HAPPY','HUNGRY','SLEEPY') NOT NULL DEFAULT 'HAPPY'"},
		},
		{
			name: "remove variant drops a default naming it",
			step: steps.RemoveEnumVariant{
				Enum:     "Cat_mood",
				Variant:  "HUNGRY",
				Variants: []string{"HAPPY"},
				Usages: []schema.EnumUsage{
					{Table: "Cat", Column: schema.Column{Name: "mood", Type: schema.EnumType("Cat_mood"), Nullable: true, Default: schema.Variant("HUNGRY")}},
				},
			},
			expected: []string{"ALTER TABLE `Cat` MODIFY COLUMN `mood` ENUM('HAPPY')"},
		},
		{
			name: "reorder variants restates the column",
			step: steps.ReorderEnumVariants{
				Enum:     "Cat_mood",
				Previous: []string{"HAPPY", "HUNGRY"},
				Variants: []string{"HUNGRY", "HAPPY"},
				Usages: []schema.EnumUsage{
					{Table: "Cat", Column: schema.Column{Name: "mood", Type: schema.EnumType("Cat_mood"), Default: schema.Variant("HAPPY")}},
				},
			},
			expected: []string{"ALTER TABLE `Cat` MODIFY COLUMN `mood` ENUM('HUNGRY','HAPPY') NOT NULL DEFAULT 'HAPPY'"},
		},
		{
			name:     "replace primary key",
			step:     steps.AlterPrimaryKey{Table: "Cat", Previous: []string{"id"}, Next: []string{"id", "name"}},
			expected: []string{"ALTER TABLE `Cat` DROP PRIMARY KEY, ADD PRIMARY KEY (`id`, `name`)"},
		},
		{
			name:     "add primary key",
			step:     steps.AlterPrimaryKey{Table: "Cat", Next: []string{"id"}},
			expected: []string{"ALTER TABLE `Cat` ADD PRIMARY KEY (`id`)"},
		},
		{
			name: "add foreign key",
			step: steps.AddForeignKey{Table: "Cat", ForeignKey: schema.ForeignKey{
				Columns:           []string{"ownerId"},
				ReferencedTable:   "Owner",
				ReferencedColumns: []string{"id"},
				OnDelete:          schema.Cascade,
			}},
			expected: []string{"ALTER TABLE `Cat` ADD CONSTRAINT `Cat_ownerId_fkey` FOREIGN KEY (`ownerId`) REFERENCES `Owner` (`id`) ON DELETE CASCADE"},
		},
		{
			name: "drop foreign key",
			step: steps.DropForeignKey{Table: "Cat", ForeignKey: schema.ForeignKey{
				Columns: []string{"ownerId"}, ReferencedTable: "Owner", ReferencedColumns: []string{"id"},
			}},
			expected: []string{"ALTER TABLE `Cat` DROP FOREIGN KEY `Cat_ownerId_fkey`"},
		},
		{
			name:     "drop index names the table",
			step:     steps.DropIndex{Table: "Cat", Index: schema.Index{Columns: []string{"name"}, Unique: true}},
			expected: []string{"DROP INDEX `Cat_name_key` ON `Cat`"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(render(c, tt.step), qt.DeepEquals, tt.expected)
		})
	}
}

func TestPlanner_MissingEnumDefinition(t *testing.T) {
	c := qt.New(t)

	_, err := mysql.New().Plan(steps.AddColumn{Table: "Cat", Column: schema.Column{
		Name: "mood", Type: schema.EnumType("Cat_mood"),
	}})

	c.Assert(err, qt.ErrorMatches, `failed to plan column Cat.mood: missing definition of enum "Cat_mood"`)
}

func TestDefaultValue(t *testing.T) {
	tests := []struct {
		name     string
		typ      schema.ColumnType
		def      *schema.DefaultValue
		expected string
	}{
		{"number", schema.Decimal(10, 2), schema.Literal("1.5"), "1.5"},
		{"false", schema.Boolean(), schema.Literal("false"), "0"},
		{"json", schema.JSON(), schema.Literal(`{}`), `('{}')`},
		{"varchar", schema.String(10), schema.Literal("a"), `'a'`},
		{"function", schema.String(36), schema.Expression("uuid"), "(uuid())"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			d := mysql.DefaultValue(tt.typ, tt.def)
			if d.Expression != "" {
				c.Assert(d.Expression, qt.Equals, tt.expected)
			} else {
				c.Assert(d.Value, qt.Equals, tt.expected)
			}
		})
	}
}
