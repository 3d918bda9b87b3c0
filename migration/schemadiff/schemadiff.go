// Package schemadiff computes the steps that transform one schema into another.
//
// The result is an unordered set of steps: the comparison functions emit them in a
// deterministic sequence, but dependencies between steps (a foreign key needs its
// referenced table, a dropped column must lose its indexes first) are resolved by
// the planner package.
package schemadiff

import (
	"github.com/stokaro/schemapush/config"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/schemadiff/internal/compare"
	"github.com/stokaro/schemapush/migration/steps"
)

// Compare performs schema comparison between the current and the desired schema
// using default options (the schema_migrations table is ignored, names match
// exactly). For custom configuration, use CompareWithOptions.
func Compare(current, desired *schema.Schema) []steps.Step {
	return CompareWithOptions(current, desired, config.DefaultCompareOptions())
}

// CompareWithOptions performs schema comparison between the current and the desired
// schema with custom configuration options.
//
// Parameters:
//   - current: Schema introspected from the database
//   - desired: Target schema, already normalised for the dialect
//   - opts: Configuration options for comparison (nil matches exactly and ignores nothing)
//
// Comparing a schema with itself yields no steps. Renamed tables, columns and
// enums are observed as a removal plus an addition.
//
// Example usage:
//
//	// Use default options
//	diff := schemadiff.CompareWithOptions(current, desired, config.DefaultCompareOptions())
//
//	// Match names case-insensitively and leave an audit table alone
//	opts := config.WithAdditionalIgnoredTables("audit_log").WithCaseInsensitiveNames()
//	diff := schemadiff.CompareWithOptions(current, desired, opts)
func CompareWithOptions(current, desired *schema.Schema, opts *config.CompareOptions) []steps.Step {
	d := compare.NewDiff(current, desired, opts)

	// Compare table sets: create and drop whole tables
	compare.Tables(d)

	// Compare enum type definitions and variants
	compare.Enums(d)

	// Compare columns of tables present in both schemas
	compare.TableColumns(d)

	// Compare indexes of tables present in both schemas
	compare.Indexes(d)

	// Compare foreign keys; must follow column comparison to see retyped columns
	compare.ForeignKeys(d)

	return d.Steps
}
