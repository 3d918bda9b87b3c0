// Package push ties the schema pipeline together: it introspects the database,
// diffs it against the desired schema, orders and classifies the steps and,
// unless the safety gate holds them back, applies them.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stokaro/schemapush/config"
	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/migration/applier"
	"github.com/stokaro/schemapush/migration/destructive"
	"github.com/stokaro/schemapush/migration/planner"
	"github.com/stokaro/schemapush/migration/schemadiff"
	"github.com/stokaro/schemapush/migration/steps"
)

// ErrPlanning is wrapped by every error that stops a push before any statement
// reaches the database: an invalid desired schema, a cyclic step dependency or
// a step the dialect cannot render.
var ErrPlanning = errors.New("failed to plan migration")

// LockKey is the key pushes lock on when the connector implements
// connector.Locker.
const LockKey = "schemapush"

// Plan is a classified, rendered migration that has not been applied.
type Plan struct {
	Steps    []applier.RenderedStep
	Report   *destructive.Report
	Current  *schema.Schema
	Expected *schema.Schema
}

// Empty reports whether the database already matches the desired schema.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Blocked reports whether the safety gate holds the plan back.
func (p *Plan) Blocked(force bool) bool {
	return !force && !p.Report.Empty()
}

// SQL returns the rendered statements in execution order.
func (p *Plan) SQL() []string {
	var out []string
	for _, rs := range p.Steps {
		for _, stmt := range rs.Statements {
			out = append(out, stmt.SQL)
		}
	}
	return out
}

// Descriptions returns a one-line description per step.
func (p *Plan) Descriptions() []string {
	out := make([]string, len(p.Steps))
	for i, rs := range p.Steps {
		out[i] = rs.Step.String()
	}
	return out
}

// OrderedSteps returns the ordered steps of a plan.
func (p *Plan) OrderedSteps() []steps.Step {
	out := make([]steps.Step, len(p.Steps))
	for i, rs := range p.Steps {
		out[i] = rs.Step
	}
	return out
}

// Result is the outcome of a push.
type Result struct {
	// Applied is false when the push was blocked by warnings or unexecutable
	// steps and nothing was executed.
	Applied       bool                  `json:"applied"`
	ExecutedSteps int                   `json:"executedSteps"`
	Warnings      []destructive.Finding `json:"warnings"`
	Unexecutable  []destructive.Finding `json:"unexecutable"`
	Steps         []string              `json:"steps"`
}

// Engine runs pushes against one database.
type Engine struct {
	conn   connector.Connector
	opts   *config.CompareOptions
	logger *slog.Logger
}

// New creates an engine for the connector with the default compare options.
func New(conn connector.Connector) *Engine {
	return &Engine{
		conn:   conn,
		opts:   config.DefaultCompareOptions(),
		logger: slog.Default(),
	}
}

// WithLogger returns a copy of the engine that logs to l.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	tmp := *e
	tmp.logger = l
	return &tmp
}

// WithCompareOptions returns a copy of the engine that diffs with opts.
func (e *Engine) WithCompareOptions(opts *config.CompareOptions) *Engine {
	tmp := *e
	tmp.opts = opts
	return &tmp
}

// Plan computes the migration from the current database schema to desired
// without applying it.
func (e *Engine) Plan(ctx context.Context, desired *schema.Schema) (*Plan, error) {
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	current, err := e.conn.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database: %w", err)
	}

	expected, err := e.conn.CalculateSchema(desired)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	diff := schemadiff.CompareWithOptions(current, expected, e.opts)
	ordered, err := planner.Order(diff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	rendered, err := applier.Render(e.conn, ordered)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	report := destructive.NewChecker(e.conn).WithLogger(e.logger).Check(ctx, ordered)

	e.logger.Debug("migration planned",
		"dialect", e.conn.Dialect(),
		"steps", len(ordered),
		"warnings", len(report.Warnings),
		"unexecutable", len(report.Unexecutable))

	return &Plan{
		Steps:    rendered,
		Report:   report,
		Current:  current,
		Expected: expected,
	}, nil
}

// Push brings the database to the desired schema. When the plan has warnings
// or unexecutable steps and force is false, nothing is executed and the result
// reports Applied as false. Warnings are reported even for forced pushes.
//
// If the connector implements connector.Locker, the whole push runs under the
// lock for LockKey.
func (e *Engine) Push(ctx context.Context, desired *schema.Schema, force bool) (*Result, error) {
	if locker, ok := e.conn.(connector.Locker); ok {
		release, err := locker.Lock(ctx, LockKey)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer release()
	}

	plan, err := e.Plan(ctx, desired)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Warnings:     orEmpty(plan.Report.Warnings),
		Unexecutable: orEmpty(plan.Report.Unexecutable),
		Steps:        plan.Descriptions(),
	}

	if plan.Blocked(force) {
		e.logger.Warn("push blocked by destructive changes",
			"warnings", len(result.Warnings),
			"unexecutable", len(result.Unexecutable))
		return result, nil
	}
	if force && !plan.Report.Empty() {
		e.logger.Warn("forcing push despite destructive changes", "messages", plan.Report.Messages())
	}

	executed, err := applier.New(e.conn).WithLogger(e.logger).ApplyRendered(ctx, plan.Steps)
	result.ExecutedSteps = executed
	if err != nil {
		return result, err
	}
	result.Applied = true
	return result, nil
}

// ApplyScript runs a raw script against the database. It bypasses diffing and
// classification entirely.
func (e *Engine) ApplyScript(ctx context.Context, script string) error {
	return applier.New(e.conn).WithLogger(e.logger).ApplyScript(ctx, script)
}

func orEmpty(f []destructive.Finding) []destructive.Finding {
	if f == nil {
		return []destructive.Finding{}
	}
	return f
}
