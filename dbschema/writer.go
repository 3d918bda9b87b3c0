package dbschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoTransaction is returned when committing or rolling back a writer that has
// no open transaction.
var ErrNoTransaction = errors.New("no transaction in progress")

// Writer executes DDL statements, optionally inside one transaction. A Writer
// is not safe for concurrent use; take a new one per migration.
type Writer struct {
	conn *DatabaseConnection
	tx   *sql.Tx
	// dryTx tracks a dry-run transaction, which has no sql.Tx behind it.
	dryTx bool
}

// BeginTransaction starts a transaction that subsequent statements run in.
func (w *Writer) BeginTransaction(ctx context.Context) error {
	if w.tx != nil || w.dryTx {
		return fmt.Errorf("failed to begin transaction: a transaction is already in progress")
	}
	if w.conn.dryRun != nil {
		w.dryTx = true
		return w.print("BEGIN")
	}
	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx
	return nil
}

// ExecuteSQL runs one statement, in the open transaction if there is one.
func (w *Writer) ExecuteSQL(ctx context.Context, query string) error {
	if w.conn.dryRun != nil {
		return w.print(query)
	}
	w.conn.logger.Debug("executing statement", "sql", query)

	var err error
	if w.tx != nil {
		_, err = w.tx.ExecContext(ctx, query)
	} else {
		_, err = w.conn.ExecContext(ctx, query)
	}
	return err
}

// CommitTransaction commits the open transaction.
func (w *Writer) CommitTransaction() error {
	if w.dryTx {
		w.dryTx = false
		return w.print("COMMIT")
	}
	if w.tx == nil {
		return ErrNoTransaction
	}
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls the open transaction back.
func (w *Writer) RollbackTransaction() error {
	if w.dryTx {
		w.dryTx = false
		return w.print("ROLLBACK")
	}
	if w.tx == nil {
		return ErrNoTransaction
	}
	err := w.tx.Rollback()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (w *Writer) print(stmt string) error {
	if _, err := fmt.Fprintf(w.conn.dryRun, "%s;\n", stmt); err != nil {
		return fmt.Errorf("failed to write statement: %w", err)
	}
	return nil
}
