// Package destructive classifies ordered migration steps by the risk they carry
// for the data currently stored in the database.
//
// The classifier only annotates. It never blocks anything by itself: deciding
// whether a migration with warnings runs is the caller's job.
package destructive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/steps"
)

// Severity grades a classified step.
type Severity int

const (
	// Safe steps cannot lose data.
	Safe Severity = iota
	// Warning steps may lose data and need explicit confirmation.
	Warning
	// Unexecutable steps will fail against the data currently stored.
	Unexecutable
)

func (s Severity) String() string {
	switch s {
	case Safe:
		return "safe"
	case Warning:
		return "warning"
	case Unexecutable:
		return "unexecutable"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is the classification of one step as Warning or Unexecutable.
type Finding struct {
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Step     int        `json:"step"`
	Kind     steps.Kind `json:"kind"`
	// Degraded is set when the finding was produced because the data could not
	// be inspected, not because the data is known to be at risk.
	Degraded bool `json:"degraded,omitempty"`
}

// Report collects the findings for a list of steps.
type Report struct {
	Warnings     []Finding `json:"warnings"`
	Unexecutable []Finding `json:"unexecutable"`
}

// Empty reports whether every step is safe.
func (r *Report) Empty() bool {
	return len(r.Warnings) == 0 && len(r.Unexecutable) == 0
}

// Messages returns every finding message, warnings first.
func (r *Report) Messages() []string {
	out := make([]string, 0, len(r.Warnings)+len(r.Unexecutable))
	for _, f := range r.Warnings {
		out = append(out, f.Message)
	}
	for _, f := range r.Unexecutable {
		out = append(out, f.Message)
	}
	return out
}

func (r *Report) add(f Finding) {
	if f.Severity == Unexecutable {
		r.Unexecutable = append(r.Unexecutable, f)
		return
	}
	r.Warnings = append(r.Warnings, f)
}

// Inspector is the part of a connector the classifier needs.
type Inspector interface {
	RowCount(ctx context.Context, table string) (int64, error)
	ColumnValueCounts(ctx context.Context, table, column string) (connector.ValueCounts, error)
	DescribeType(t schema.ColumnType) string
}

// Checker classifies steps against the data of one database.
type Checker struct {
	inspector Inspector
	logger    *slog.Logger
}

// NewChecker creates a checker reading data through the inspector.
func NewChecker(inspector Inspector) *Checker {
	return &Checker{
		inspector: inspector,
		logger:    slog.Default(),
	}
}

// WithLogger returns a copy of the checker that logs to l.
func (c *Checker) WithLogger(l *slog.Logger) *Checker {
	cc := *c
	cc.logger = l
	return &cc
}

// Check classifies the ordered steps. Tables created by an earlier step of the
// same list count as empty without asking the database. Row and value counts are
// fetched at most once per table or column. A failed count turns the step into
// a degraded Warning.
func (c *Checker) Check(ctx context.Context, ordered []steps.Step) *Report {
	run := &checkRun{
		Checker: c,
		ctx:     ctx,
		created: make(map[string]bool),
		rows:    make(map[string]countResult),
		values:  make(map[string]valuesResult),
		report:  &Report{},
	}
	for i, s := range ordered {
		run.classify(i, s)
		if ct, ok := s.(steps.CreateTable); ok {
			run.created[ct.Table.Name] = true
		}
	}
	return run.report
}

type countResult struct {
	n   int64
	err error
}

type valuesResult struct {
	counts connector.ValueCounts
	err    error
}

type checkRun struct {
	*Checker
	ctx     context.Context
	created map[string]bool
	rows    map[string]countResult
	values  map[string]valuesResult
	report  *Report
}

func (r *checkRun) rowCount(table string) (int64, error) {
	if r.created[table] {
		return 0, nil
	}
	if res, ok := r.rows[table]; ok {
		return res.n, res.err
	}
	n, err := r.inspector.RowCount(r.ctx, table)
	if err != nil {
		r.logger.Warn("failed to count rows", "table", table, "error", err)
	}
	r.rows[table] = countResult{n: n, err: err}
	return n, err
}

func (r *checkRun) valueCounts(table, column string) (connector.ValueCounts, error) {
	if r.created[table] {
		return connector.ValueCounts{}, nil
	}
	key := table + "\x00" + column
	if res, ok := r.values[key]; ok {
		return res.counts, res.err
	}
	counts, err := r.inspector.ColumnValueCounts(r.ctx, table, column)
	if err != nil {
		r.logger.Warn("failed to count column values", "table", table, "column", column, "error", err)
	}
	r.values[key] = valuesResult{counts: counts, err: err}
	return counts, err
}

func (r *checkRun) finding(i int, s steps.Step, sev Severity, format string, args ...any) {
	r.report.add(Finding{Severity: sev, Message: fmt.Sprintf(format, args...), Step: i, Kind: s.Kind()})
}

func (r *checkRun) degraded(i int, s steps.Step, table string, err error) {
	r.report.add(Finding{
		Severity: Warning,
		Message:  fmt.Sprintf("Could not determine whether the `%s` table contains data: %v. Treating %s as destructive.", table, err, s.String()),
		Step:     i,
		Kind:     s.Kind(),
		Degraded: true,
	})
}

func (r *checkRun) classify(i int, s steps.Step) {
	switch s := s.(type) {
	case steps.DropTable:
		rows, err := r.rowCount(s.Table.Name)
		if err != nil {
			r.degraded(i, s, s.Table.Name, err)
			return
		}
		if rows > 0 {
			r.finding(i, s, Warning, "You are about to drop the `%s` table, which is not empty (%d rows).", s.Table.Name, rows)
		}

	case steps.DropColumn:
		rows, err := r.rowCount(s.Table)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if rows == 0 {
			return
		}
		counts, err := r.valueCounts(s.Table, s.Column.Name)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		r.finding(i, s, Warning, "You are about to drop the column `%s` on the `%s` table, which still contains %d non-null values.", s.Column.Name, s.Table, counts.NonNull)

	case steps.AddColumn:
		if s.Column.Nullable || s.Column.Default != nil || s.Column.AutoIncrement {
			return
		}
		rows, err := r.rowCount(s.Table)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if rows > 0 {
			r.finding(i, s, Unexecutable, "Added the required column `%s` to the `%s` table without a default value. There are %d rows in this table, it is not possible to execute this step.", s.Column.Name, s.Table, rows)
		}

	case steps.AlterColumn:
		r.classifyAlter(i, s)

	case steps.RemoveEnumVariant:
		r.finding(i, s, Warning, "The migration will remove the values [%s] on the enum `%s`. If these variants are still used in the database, the migration will fail.", s.Variant, s.Enum)

	case steps.AlterPrimaryKey:
		rows, err := r.rowCount(s.Table)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if rows > 0 {
			r.finding(i, s, Warning, "The primary key for the `%s` table will be changed. If it partially fails, the table could be left without primary key constraint.", s.Table)
		}

	case steps.CreateTable, steps.CreateEnum, steps.DropEnum, steps.AddEnumVariant, steps.ReorderEnumVariants,
		steps.AddForeignKey, steps.DropForeignKey, steps.CreateIndex, steps.DropIndex,
		steps.RawScript:
		// safe

	default:
		panic(fmt.Sprintf("destructive: unhandled step type %T", s))
	}
}

func (r *checkRun) classifyAlter(i int, s steps.AlterColumn) {
	if s.HasChange(schema.ChangeType) && castRisk(s.Previous.Type, s.Next.Type) {
		counts, err := r.valueCounts(s.Table, s.Previous.Name)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if counts.NonNull > 0 {
			r.finding(i, s, Warning, "You are about to alter the column `%s` on the `%s` table, which contains %d non-null values. The data in that column will be cast from `%s` to `%s`.",
				s.Previous.Name, s.Table, counts.NonNull,
				r.inspector.DescribeType(s.Previous.Type), r.inspector.DescribeType(s.Next.Type))
		}
	}

	if s.HasChange(schema.ChangeNullability) && s.Previous.Nullable && !s.Next.Nullable {
		rows, err := r.rowCount(s.Table)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if rows == 0 {
			return
		}
		counts, err := r.valueCounts(s.Table, s.Previous.Name)
		if err != nil {
			r.degraded(i, s, s.Table, err)
			return
		}
		if counts.Null > 0 && s.Next.Default == nil {
			r.finding(i, s, Unexecutable, "Made the column `%s` on table `%s` required, but there are %d existing NULL values.", s.Next.Name, s.Table, counts.Null)
			return
		}
		r.finding(i, s, Warning, "You are about to make the column `%s` on the `%s` table required, which contains %d rows%s.",
			s.Next.Name, s.Table, rows, backfillNote(counts.Null, s.Next.Default))
	}
}

func backfillNote(nulls int64, def *schema.DefaultValue) string {
	if nulls == 0 || def == nil {
		return ""
	}
	return fmt.Sprintf("; %d NULL values will be set to the default %s", nulls, def)
}

// castRisk reports whether converting the stored values can fail or lose data:
// narrowing conversions, and any conversion into or out of an enum.
func castRisk(from, to schema.ColumnType) bool {
	if from.IsEnum() != to.IsEnum() {
		return true
	}
	if from.IsEnum() && to.IsEnum() {
		return !strings.EqualFold(from.EnumName, to.EnumName)
	}
	return !schema.IsWidening(from, to)
}
