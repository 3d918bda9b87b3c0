// Package applier executes ordered migration steps through a connector.
//
// Every step is rendered before the first statement runs, so a step the dialect
// cannot express never leaves a half-applied migration behind. When the
// connector supports transactional DDL the whole migration runs in a single
// transaction; otherwise statements run one by one and a failure leaves the
// statements before it in place. ExecError tells the two situations apart.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/migration/steps"
)

// Target is the part of a connector the applier uses.
type Target interface {
	Supports(c connector.Capability) bool
	Render(s steps.Step) ([]connector.Statement, error)
	Execute(ctx context.Context, statements []connector.Statement, transactional bool) error
	ExecuteRaw(ctx context.Context, script string) error
}

// RenderedStep is a step together with the statements that perform it.
type RenderedStep struct {
	Step       steps.Step
	Statements []connector.Statement
}

// Render renders every step. The first failure is returned and wraps the
// connector's error, typically connector.ErrUnsupported.
func Render(target Target, ordered []steps.Step) ([]RenderedStep, error) {
	out := make([]RenderedStep, 0, len(ordered))
	for i, s := range ordered {
		stmts, err := target.Render(s)
		if err != nil {
			return nil, fmt.Errorf("failed to render step %d (%s): %w", i+1, s, err)
		}
		out = append(out, RenderedStep{Step: s, Statements: stmts})
	}
	return out, nil
}

// ExecError reports a failed migration.
type ExecError struct {
	// FailedStep is the index of the step whose statement failed, or -1 when the
	// failure happened outside any statement, e.g. while opening the transaction.
	FailedStep int
	Step       steps.Step
	Statement  connector.Statement
	// AppliedSteps counts the steps that were completely applied and remain in
	// place. It is always zero for transactional migrations.
	AppliedSteps int
	// AppliedStatements counts the statements that remain in place, including
	// those of a partially applied failed step.
	AppliedStatements int
	Transactional     bool
	Err               error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	if e.Step != nil {
		fmt.Fprintf(&b, "failed to apply step %d (%s): %v", e.FailedStep+1, e.Step, e.Err)
	} else {
		fmt.Fprintf(&b, "failed to apply migration: %v", e.Err)
	}
	switch {
	case e.Transactional:
		b.WriteString("; the transaction was rolled back")
	case e.AppliedStatements > 0:
		fmt.Fprintf(&b, "; %d steps (%d statements) were applied before the failure", e.AppliedSteps, e.AppliedStatements)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// NothingApplied reports whether the database is known to be unchanged.
func (e *ExecError) NothingApplied() bool {
	return e.AppliedStatements == 0
}

// RawScriptError wraps the connector's error for a failed raw script.
type RawScriptError struct {
	Err error
}

func (e *RawScriptError) Error() string {
	return fmt.Sprintf("failed to execute script: %v", e.Err)
}

func (e *RawScriptError) Unwrap() error {
	return e.Err
}

// Applier applies migrations to one target database.
type Applier struct {
	target Target
	logger *slog.Logger
}

// New creates an applier for the target.
func New(target Target) *Applier {
	return &Applier{
		target: target,
		logger: slog.Default(),
	}
}

// WithLogger returns a copy of the applier that logs to l.
func (a *Applier) WithLogger(l *slog.Logger) *Applier {
	tmp := *a
	tmp.logger = l
	return &tmp
}

// Apply renders and executes the ordered steps and returns how many were
// applied. Render failures are returned before anything runs; execution
// failures are returned as *ExecError.
func (a *Applier) Apply(ctx context.Context, ordered []steps.Step) (int, error) {
	rendered, err := Render(a.target, ordered)
	if err != nil {
		return 0, err
	}
	return a.ApplyRendered(ctx, rendered)
}

// ApplyRendered executes steps rendered with Render.
func (a *Applier) ApplyRendered(ctx context.Context, rendered []RenderedStep) (int, error) {
	var (
		statements []connector.Statement
		owners     []int
	)
	for i, rs := range rendered {
		for _, stmt := range rs.Statements {
			statements = append(statements, stmt)
			owners = append(owners, i)
		}
	}
	if len(statements) == 0 {
		return len(rendered), nil
	}

	transactional := a.target.Supports(connector.TransactionalDDL)
	a.logger.Info("applying migration", "steps", len(rendered), "statements", len(statements), "transactional", transactional)

	err := a.target.Execute(ctx, statements, transactional)
	if err == nil {
		a.logger.Info("migration applied", "steps", len(rendered))
		return len(rendered), nil
	}

	execErr := &ExecError{FailedStep: -1, Transactional: transactional, Err: err}
	var stmtErr *connector.ExecError
	if errors.As(err, &stmtErr) && stmtErr.Index >= 0 && stmtErr.Index < len(statements) {
		execErr.FailedStep = owners[stmtErr.Index]
		execErr.Step = rendered[execErr.FailedStep].Step
		execErr.Statement = stmtErr.Statement
		execErr.Err = stmtErr.Err
		if !transactional {
			execErr.AppliedSteps = execErr.FailedStep
			execErr.AppliedStatements = stmtErr.Index
		}
	}
	a.logger.Error("migration failed",
		"step", execErr.FailedStep,
		"applied_steps", execErr.AppliedSteps,
		"transactional", transactional,
		"error", execErr.Err)
	return execErr.AppliedSteps, execErr
}

// ApplyScript passes an operator-authored script to the database verbatim. It
// does not diff, classify or inspect the script in any way.
func (a *Applier) ApplyScript(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	a.logger.Info("applying raw script", "bytes", len(script))
	if err := a.target.ExecuteRaw(ctx, script); err != nil {
		return &RawScriptError{Err: err}
	}
	return nil
}
