// Package sql implements dialect.Driver on top of database/sql.
//
// Statements handed to a Driver use '?' placeholders regardless of the
// target database. The PostgreSQL connection renumbers them to $1, $2, ...
// before execution:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	var rows sql.Rows
//	err = drv.Query(ctx, "SELECT id FROM users WHERE name = ?", []any{"a"}, &rows)
//
// # Statistics
//
// StatsDriver wraps any dialect.Driver and counts statements, errors and
// slow statements. WithRegisterer exports the same numbers as prometheus
// collectors.
//
// # Debug output
//
// Format, Interpolate and Quote render a statement with its arguments
// inlined, one clause per line, for logging. The result is never sent to
// the database.
//
// # Constraint errors
//
// ConstraintOf classifies driver errors from lib/pq, go-sql-driver/mysql
// and modernc.org/sqlite into unique, foreign key, check and not-null
// violations.
package sql
