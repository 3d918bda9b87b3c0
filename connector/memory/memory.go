// Package memory implements connector.Connector on an in-process schema and row
// store.
//
// The memory connector behaves like a strict database: statements fail when
// the objects they need are missing, when objects they remove are still
// referenced, and when the stored rows violate the new definition. Rows are
// seeded with InsertRows. Every capability is supported unless switched off with
// Without, so one connector can stand in for any dialect in tests.
//
// Rendered statements are opaque: the SQL text is a numbered marker followed by
// the step description, and only statements rendered by the same connector can
// be executed.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
	"github.com/stokaro/schemapush/core/sqlutil"
	"github.com/stokaro/schemapush/migration/steps"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: connector is closed")

// Row is one stored row keyed by column name. A nil value is NULL.
type Row map[string]any

// Option configures a Connector.
type Option func(*Connector)

// Without switches capabilities off.
func Without(caps ...connector.Capability) Option {
	return func(c *Connector) {
		for _, cp := range caps {
			c.caps[cp] = false
		}
	}
}

// WithSchema starts the connector with an existing schema and empty tables.
func WithSchema(s *schema.Schema) Option {
	return func(c *Connector) {
		c.store.state = newState(s.Clone())
	}
}

// Connector is the in-memory connector. Copies made by WithLogger share the
// stored data.
type Connector struct {
	store  *store
	caps   map[connector.Capability]bool
	logger *slog.Logger
}

var (
	_ connector.Connector = (*Connector)(nil)
	_ connector.Locker    = (*Connector)(nil)
)

type store struct {
	mu            sync.Mutex
	state         state
	rendered      map[int]steps.Step
	nextID        int
	executed      []connector.Statement
	failures      []failure
	countErr      error
	introspectErr error
	locks         map[string]chan struct{}
	closed        bool
}

type failure struct {
	substr string
	err    error
}

type state struct {
	schema *schema.Schema
	rows   map[string][]Row
}

func newState(s *schema.Schema) state {
	st := state{schema: s, rows: make(map[string][]Row)}
	for _, t := range s.Tables {
		st.rows[t.Name] = nil
	}
	return st
}

func (s state) clone() state {
	out := state{schema: s.schema.Clone(), rows: make(map[string][]Row, len(s.rows))}
	for name, rows := range s.rows {
		cp := make([]Row, len(rows))
		for i, r := range rows {
			cp[i] = cloneRow(r)
		}
		out.rows[name] = cp
	}
	return out
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// New creates an empty in-memory database.
func New(opts ...Option) *Connector {
	c := &Connector{
		store: &store{
			state:    newState(&schema.Schema{}),
			rendered: make(map[int]steps.Step),
			locks:    make(map[string]chan struct{}),
		},
		caps: map[connector.Capability]bool{
			connector.Enums:            true,
			connector.NamedEnumTypes:   true,
			connector.TransactionalDDL: true,
			connector.PartialIndexes:   true,
			connector.AlterColumnType:  true,
			connector.AlterForeignKeys: true,
			connector.DropColumn:       true,
			connector.AlterPrimaryKey:  true,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLogger returns a copy of the connector that logs to l.
func (c *Connector) WithLogger(l *slog.Logger) *Connector {
	cc := *c
	cc.logger = l
	return &cc
}

func (c *Connector) Dialect() connector.Dialect {
	return connector.Memory
}

func (c *Connector) Supports(cp connector.Capability) bool {
	return c.caps[cp]
}

// InsertRows appends rows to a table. Columns missing from a row are NULL.
func (c *Connector) InsertRows(table string, rows ...Row) error {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	t := st.state.schema.Table(table)
	if t == nil {
		return fmt.Errorf("failed to insert rows: relation %q does not exist", table)
	}
	for _, r := range rows {
		row := make(Row, len(t.Columns))
		for _, col := range t.Columns {
			row[col.Name] = r[col.Name]
		}
		for k := range r {
			if t.Column(k) == nil {
				return fmt.Errorf("failed to insert rows: column %q of relation %q does not exist", k, table)
			}
		}
		st.state.rows[table] = append(st.state.rows[table], row)
	}
	return nil
}

// Rows returns a copy of the rows stored in a table.
func (c *Connector) Rows(table string) []Row {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	rows := st.state.rows[table]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}

// FailOn makes every statement whose SQL contains substr fail with err.
func (c *Connector) FailOn(substr string, err error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failures = append(st.failures, failure{substr: substr, err: err})
}

// FailCounts makes RowCount and ColumnValueCounts fail with err. A nil err
// restores them.
func (c *Connector) FailCounts(err error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	st.countErr = err
}

// FailIntrospect makes Introspect fail with err. A nil err restores it.
func (c *Connector) FailIntrospect(err error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	st.introspectErr = err
}

// Executed returns the statements that took effect, in execution order.
func (c *Connector) Executed() []connector.Statement {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	return slices.Clone(st.executed)
}

func (c *Connector) Introspect(ctx context.Context) (*schema.Schema, error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, ErrClosed
	}
	if st.introspectErr != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", st.introspectErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return st.state.schema.Clone(), nil
}

func (c *Connector) RowCount(ctx context.Context, table string) (int64, error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.countable(ctx, table); err != nil {
		return 0, err
	}
	return int64(len(st.state.rows[table])), nil
}

func (c *Connector) ColumnValueCounts(ctx context.Context, table, column string) (connector.ValueCounts, error) {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.countable(ctx, table); err != nil {
		return connector.ValueCounts{}, err
	}
	if st.state.schema.Table(table).Column(column) == nil {
		return connector.ValueCounts{}, fmt.Errorf("failed to count values: column %q of relation %q does not exist", column, table)
	}
	var counts connector.ValueCounts
	for _, r := range st.state.rows[table] {
		if r[column] == nil {
			counts.Null++
		} else {
			counts.NonNull++
		}
	}
	return counts, nil
}

func (st *store) countable(ctx context.Context, table string) error {
	switch {
	case st.closed:
		return ErrClosed
	case st.countErr != nil:
		return fmt.Errorf("failed to count rows: %w", st.countErr)
	case st.state.schema.Table(table) == nil:
		return fmt.Errorf("failed to count rows: relation %q does not exist", table)
	}
	return ctx.Err()
}

func (c *Connector) CalculateSchema(desired *schema.Schema) (*schema.Schema, error) {
	switch {
	case !c.Supports(connector.Enums):
		return connector.EnumsAsStrings(desired), nil
	case !c.Supports(connector.NamedEnumTypes):
		return connector.InlineEnums(desired), nil
	default:
		return desired.Clone(), nil
	}
}

func (c *Connector) DescribeType(t schema.ColumnType) string {
	if t.IsEnum() {
		return fmt.Sprintf("Enum(%q)", t.EnumName)
	}
	return t.String()
}

func (c *Connector) Render(s steps.Step) ([]connector.Statement, error) {
	s, skip, err := c.prepare(s)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}

	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextID++
	st.rendered[st.nextID] = s
	return []connector.Statement{{SQL: fmt.Sprintf("%s%d */ %s", marker, st.nextID, s)}}, nil
}

const marker = "/* memory:"

func unsupported(s steps.Step) error {
	return fmt.Errorf("failed to render %s: %w", s, connector.ErrUnsupported)
}

// prepare adapts a step to the enabled capabilities. skip is set for steps
// another step already performs.
func (c *Connector) prepare(s steps.Step) (_ steps.Step, skip bool, _ error) {
	switch s := s.(type) {
	case steps.CreateTable:
		for _, idx := range s.Table.Indexes {
			if idx.Where != "" && !c.Supports(connector.PartialIndexes) {
				return nil, false, unsupported(s)
			}
		}
		if c.Supports(connector.AlterForeignKeys) {
			s.Table = s.Table.Clone()
			s.Table.ForeignKeys = nil
		}
		return s, false, nil

	case steps.AddForeignKey:
		if !c.Supports(connector.AlterForeignKeys) {
			if s.NewTable {
				return nil, true, nil
			}
			return nil, false, unsupported(s)
		}

	case steps.DropForeignKey:
		if !c.Supports(connector.AlterForeignKeys) {
			if s.TableDropped {
				return nil, true, nil
			}
			return nil, false, unsupported(s)
		}

	case steps.AlterColumn:
		if s.HasChange(schema.ChangeType) && !c.Supports(connector.AlterColumnType) {
			return nil, false, unsupported(s)
		}

	case steps.DropColumn:
		if !c.Supports(connector.DropColumn) {
			return nil, false, unsupported(s)
		}

	case steps.AlterPrimaryKey:
		if !c.Supports(connector.AlterPrimaryKey) {
			return nil, false, unsupported(s)
		}

	case steps.CreateEnum, steps.DropEnum, steps.AddEnumVariant, steps.RemoveEnumVariant, steps.ReorderEnumVariants:
		if !c.Supports(connector.Enums) {
			return nil, false, unsupported(s)
		}

	case steps.CreateIndex:
		if s.Index.Where != "" && !c.Supports(connector.PartialIndexes) {
			return nil, false, unsupported(s)
		}
	}
	return s, false, nil
}

func (c *Connector) Execute(ctx context.Context, statements []connector.Statement, transactional bool) error {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrClosed
	}

	target := st.state
	if transactional {
		target = st.state.clone()
	}
	var pending []connector.Statement
	for i, stmt := range statements {
		err := ctx.Err()
		if err == nil {
			err = c.exec(&target, stmt)
		}
		if err != nil {
			c.logger.Debug("statement failed", "index", i, "sql", stmt.SQL, "transactional", transactional, "error", err)
			return &connector.ExecError{Index: i, Statement: stmt, Err: err}
		}
		c.logger.Debug("executed statement", "sql", stmt.SQL)
		if transactional {
			pending = append(pending, stmt)
		} else {
			st.executed = append(st.executed, stmt)
		}
	}
	if transactional {
		st.state = target
		st.executed = append(st.executed, pending...)
	}
	return nil
}

// ExecuteRaw runs a script made of statements previously rendered by this
// connector. Statements run one by one without a transaction.
func (c *Connector) ExecuteRaw(ctx context.Context, script string) error {
	var statements []connector.Statement
	for _, sql := range sqlutil.SplitSQLStatements(script) {
		statements = append(statements, connector.Statement{SQL: sql})
	}
	if len(statements) == 0 {
		return nil
	}
	return c.Execute(ctx, statements, false)
}

func (c *Connector) Close() error {
	st := c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closed = true
	return nil
}

// Lock serialises callers using the same key within the process.
func (c *Connector) Lock(ctx context.Context, key string) (func(), error) {
	st := c.store
	st.mu.Lock()
	ch, ok := st.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		st.locks[key] = ch
	}
	st.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, ctx.Err())
	}
}

func parseStatement(sql string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(sql), marker)
	if !ok {
		return 0, false
	}
	num, _, ok := strings.Cut(rest, " */")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(num)
	return id, err == nil
}

// exec runs one statement against target. Called with the store locked.
func (c *Connector) exec(target *state, stmt connector.Statement) error {
	for _, f := range c.store.failures {
		if strings.Contains(stmt.SQL, f.substr) {
			return f.err
		}
	}
	id, ok := parseStatement(stmt.SQL)
	if !ok {
		return fmt.Errorf("syntax error at or near %q", firstWord(stmt.SQL))
	}
	s, ok := c.store.rendered[id]
	if !ok {
		return fmt.Errorf("unknown statement %d", id)
	}
	if raw, ok := s.(steps.RawScript); ok {
		for _, sql := range sqlutil.SplitSQLStatements(raw.Script) {
			if err := c.exec(target, connector.Statement{SQL: sql}); err != nil {
				return err
			}
		}
		return nil
	}
	return c.apply(target, s)
}

func firstWord(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
