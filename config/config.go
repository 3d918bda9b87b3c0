// Package config provides configuration options for the schemapush migration engine.
//
// This package provides a simple, programmatic API for configuring schema comparison
// when schemapush is used as a library. File and environment based configuration
// belongs to the CLI, which builds these options from its flags.
package config

import (
	"slices"

	"golang.org/x/text/cases"
)

// DefaultMigrationsTable is the bookkeeping table of migration tools that is never
// managed by a push.
const DefaultMigrationsTable = "schema_migrations"

// CompareOptions contains configuration options for schema comparison operations.
// These options control which tables take part in the comparison and how names
// are matched.
type CompareOptions struct {
	// IgnoredTables is a list of table names that are invisible to the differ.
	// These tables will:
	// - Never be created, even if declared in the desired schema
	// - Never be dropped, even if missing from the desired schema
	// - Never be altered
	//
	// Common tables to ignore are bookkeeping tables owned by other tools, such as
	// the schema_migrations table of a migration runner.
	IgnoredTables []string

	// CaseInsensitiveNames matches table, column and enum names using Unicode case
	// folding. Enable it for MySQL servers running with lower_case_table_names,
	// where introspection reports names in a different case than declared.
	CaseInsensitiveNames bool
}

// DefaultCompareOptions returns the default comparison options: the conventional
// migrations table is ignored and names are matched exactly.
func DefaultCompareOptions() *CompareOptions {
	return &CompareOptions{
		IgnoredTables: []string{DefaultMigrationsTable},
	}
}

// WithIgnoredTables returns a new CompareOptions with the specified ignored tables.
// This completely replaces the default ignored tables list.
//
// Example:
//
//	opts := config.WithIgnoredTables("schema_migrations", "audit_log")
func WithIgnoredTables(tables ...string) *CompareOptions {
	return &CompareOptions{
		IgnoredTables: tables,
	}
}

// WithAdditionalIgnoredTables returns a new CompareOptions that includes the default
// ignored tables plus the additional ones specified.
//
// Example:
//
//	opts := config.WithAdditionalIgnoredTables("audit_log")
//	// Result: ["schema_migrations", "audit_log"]
func WithAdditionalIgnoredTables(tables ...string) *CompareOptions {
	defaults := DefaultCompareOptions()
	return &CompareOptions{
		IgnoredTables: append(defaults.IgnoredTables, tables...),
	}
}

// WithCaseInsensitiveNames returns a copy of the options with case-insensitive
// name matching enabled.
func (c *CompareOptions) WithCaseInsensitiveNames() *CompareOptions {
	out := &CompareOptions{CaseInsensitiveNames: true}
	if c != nil {
		out.IgnoredTables = slices.Clone(c.IgnoredTables)
	}
	return out
}

// IsTableIgnored checks if the given table should be left alone by the differ.
// The check honours CaseInsensitiveNames.
func (c *CompareOptions) IsTableIgnored(table string) bool {
	if c == nil {
		return false
	}
	key := c.NameKey(table)
	for _, ignored := range c.IgnoredTables {
		if c.NameKey(ignored) == key {
			return true
		}
	}
	return false
}

// FilterIgnoredTables removes ignored tables from the provided slice and returns a
// new slice containing only managed tables.
func (c *CompareOptions) FilterIgnoredTables(tables []string) []string {
	filtered := make([]string, 0, len(tables))
	for _, t := range tables {
		if !c.IsTableIgnored(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// NameKey returns the key under which a name is matched: the name itself, or its
// case-folded form when CaseInsensitiveNames is set.
func (c *CompareOptions) NameKey(name string) string {
	if c == nil || !c.CaseInsensitiveNames {
		return name
	}
	return cases.Fold().String(name)
}
