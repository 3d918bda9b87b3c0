package config_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemapush/config"
)

func TestDefaultCompareOptions(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultCompareOptions()

	c.Assert(opts, qt.IsNotNil)
	c.Assert(opts.IgnoredTables, qt.DeepEquals, []string{"schema_migrations"})
	c.Assert(opts.CaseInsensitiveNames, qt.IsFalse)
}

func TestWithIgnoredTables(t *testing.T) {
	tests := []struct {
		name     string
		tables   []string
		expected []string
	}{
		{
			name:     "single table",
			tables:   []string{"audit_log"},
			expected: []string{"audit_log"},
		},
		{
			name:     "multiple tables",
			tables:   []string{"schema_migrations", "audit_log", "sessions"},
			expected: []string{"schema_migrations", "audit_log", "sessions"},
		},
		{
			name:     "empty list",
			tables:   []string{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			opts := config.WithIgnoredTables(tt.tables...)
			c.Assert(opts.IgnoredTables, qt.DeepEquals, tt.expected)
		})
	}
}

func TestWithAdditionalIgnoredTables(t *testing.T) {
	tests := []struct {
		name       string
		additional []string
		expected   []string
	}{
		{
			name:       "add single table",
			additional: []string{"audit_log"},
			expected:   []string{"schema_migrations", "audit_log"},
		},
		{
			name:       "add no tables",
			additional: []string{},
			expected:   []string{"schema_migrations"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			opts := config.WithAdditionalIgnoredTables(tt.additional...)
			c.Assert(opts.IgnoredTables, qt.DeepEquals, tt.expected)
		})
	}
}

func TestCompareOptions_IsTableIgnored(t *testing.T) {
	tests := []struct {
		name            string
		ignoredTables   []string
		caseInsensitive bool
		table           string
		expected        bool
	}{
		{
			name:          "table is ignored",
			ignoredTables: []string{"schema_migrations", "audit_log"},
			table:         "audit_log",
			expected:      true,
		},
		{
			name:          "table is not ignored",
			ignoredTables: []string{"schema_migrations"},
			table:         "users",
			expected:      false,
		},
		{
			name:          "case sensitive matching",
			ignoredTables: []string{"schema_migrations"},
			table:         "Schema_Migrations",
			expected:      false,
		},
		{
			name:            "case insensitive matching",
			ignoredTables:   []string{"schema_migrations"},
			caseInsensitive: true,
			table:           "Schema_Migrations",
			expected:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			opts := &config.CompareOptions{
				IgnoredTables:        tt.ignoredTables,
				CaseInsensitiveNames: tt.caseInsensitive,
			}

			c.Assert(opts.IsTableIgnored(tt.table), qt.Equals, tt.expected)
		})
	}
}

func TestCompareOptions_FilterIgnoredTables(t *testing.T) {
	c := qt.New(t)

	opts := config.WithIgnoredTables("schema_migrations")
	c.Assert(opts.FilterIgnoredTables([]string{"users", "schema_migrations", "posts"}), qt.DeepEquals, []string{"users", "posts"})
	c.Assert(opts.FilterIgnoredTables([]string{}), qt.DeepEquals, []string{})
}

func TestCompareOptions_NameKey(t *testing.T) {
	c := qt.New(t)

	var nilOpts *config.CompareOptions
	c.Assert(nilOpts.NameKey("Users"), qt.Equals, "Users")
	c.Assert(nilOpts.IsTableIgnored("schema_migrations"), qt.IsFalse)

	folded := config.DefaultCompareOptions().WithCaseInsensitiveNames()
	c.Assert(folded.NameKey("Users"), qt.Equals, folded.NameKey("USERS"))
	c.Assert(folded.IgnoredTables, qt.DeepEquals, []string{"schema_migrations"})
}
