// Package dialect provides database dialect abstraction for vorm.
//
// This package defines the interfaces used for database-specific
// operations, allowing vorm to support PostgreSQL, MySQL and SQLite.
//
// # Dialect Constants
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Tx shares the Exec and Query methods and adds Commit and Rollback.
// Savepoints are not part of the interface; they are plain statements
// executed on a Tx.
//
// # Usage
//
//	import (
//	    "github.com/syssam/vorm/dialect"
//	    "github.com/syssam/vorm/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db := orm.NewDB(drv)
//
// The dialect/sql package implements the contracts over database/sql,
// with placeholder rebinding, debug formatting and statistics.
package dialect
