package dialect

import (
	"context"
	"fmt"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for vorm clients.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

type nopDriver struct{ name string }

// Nop returns a Driver for the given dialect that executes nothing. It is
// used to render SQL for a dialect without a live connection.
func Nop(name string) Driver { return nopDriver{name: name} }

func (nopDriver) Exec(context.Context, string, any, any) error {
	return fmt.Errorf("dialect: nop driver cannot exec")
}

func (nopDriver) Query(context.Context, string, any, any) error {
	return fmt.Errorf("dialect: nop driver cannot query")
}

func (nopDriver) Tx(context.Context) (Tx, error) {
	return nil, fmt.Errorf("dialect: nop driver cannot begin a transaction")
}

func (nopDriver) Close() error      { return nil }
func (d nopDriver) Dialect() string { return d.name }
