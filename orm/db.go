package orm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/dialect/sql"
)

// interpolateLimit caps the length of a value in debug output.
const interpolateLimit = 255

// DB is a unit of work over a database driver: it carries the current
// transaction, its savepoint depth and the identity cache. A DB is not
// safe for concurrent use; use Session to get an independent DB over the
// same driver for each request or goroutine.
type DB struct {
	drv      dialect.Driver
	dialect  string
	identity vorm.IdentityCache
	log      *slog.Logger
	debug    bool
	now      func() time.Time

	tx    dialect.Tx
	depth int
}

// Option configures a DB.
type Option func(*DB)

// WithIdentityCache makes lookups and fetches by primary key return the
// record already materialized for the same row.
//
//	db := orm.NewDB(drv, orm.WithIdentityCache(orm.NewIdentityMap(0)))
func WithIdentityCache(c vorm.IdentityCache) Option {
	return func(db *DB) { db.identity = c }
}

// WithLogger sets the logger of debug output. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.log = l }
}

// WithDebug logs every statement, with its values interpolated.
func WithDebug(on bool) Option {
	return func(db *DB) { db.debug = on }
}

// WithClock sets the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// NewDB returns a DB over drv.
func NewDB(drv dialect.Driver, opts ...Option) *DB {
	db := &DB{
		drv:     drv,
		dialect: drv.Dialect(),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open opens a database/sql connection pool and returns a DB over it.
// The driver name selects the dialect ("mysql", "postgres", "sqlite").
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	drv, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("orm: open %s: %w", driverName, err)
	}
	return NewDB(drv, opts...), nil
}

// Session returns a DB sharing the driver, logger, debug flag and clock
// of db, with no transaction and no identity cache unless opts set one.
func (db *DB) Session(opts ...Option) *DB {
	s := &DB{
		drv:     db.drv,
		dialect: db.dialect,
		log:     db.log,
		debug:   db.debug,
		now:     db.now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the underlying driver.
func (db *DB) Driver() dialect.Driver { return db.drv }

// Dialect returns the dialect name of the driver.
func (db *DB) Dialect() string { return db.dialect }

// IdentityCache returns the identity cache, or nil.
func (db *DB) IdentityCache() vorm.IdentityCache { return db.identity }

// Close closes the driver. An open transaction is rolled back first.
func (db *DB) Close() error {
	var err error
	if db.tx != nil {
		err = db.tx.Rollback()
		db.tx, db.depth = nil, 0
	}
	return errors.Join(err, db.drv.Close())
}

// Query returns a query over m bound to db.
func (db *DB) Query(m *Model) *Query { return newQuery(db, m, m.alias) }

// QueryAs returns a query over m bound to db, with the primary table
// aliased alias.
func (db *DB) QueryAs(m *Model, alias string) *Query { return newQuery(db, m, alias) }

func (db *DB) conn() dialect.ExecQuerier {
	if db.tx != nil {
		return db.tx
	}
	return db.drv
}

// Exec executes a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.exec(ctx, query, args)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	db.trace(ctx, query, args)
	var res sql.Result
	if err := db.conn().Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// QueryRows executes a statement returning rows. The caller closes them.
func (db *DB) QueryRows(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db.trace(ctx, query, args)
	rows := &sql.Rows{}
	if err := db.conn().Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryRow executes a statement and returns the raw values of its first
// row, or nil when it returns no row.
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) (vs []any, err error) {
	rows, err := db.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRow(rows, len(cols))
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	vs := make([]any, n)
	ptrs := make([]any, n)
	for i := range vs {
		ptrs[i] = &vs[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vs, nil
}

// Quote renders v as a literal of the dialect. It is meant for logging;
// statements always pass values as arguments.
func (db *DB) Quote(v any) string { return sql.Quote(db.dialect, v) }

// Now returns the current time of the DB clock.
func (db *DB) Now() time.Time { return db.now() }

// trace logs a statement in debug mode. Long statements and joins are
// pretty-printed; statements inside a transaction are indented by its
// depth.
func (db *DB) trace(ctx context.Context, query string, args []any) {
	if !db.debug {
		return
	}
	s := sql.Format(query, sql.DefaultWidth)
	if len(args) > 0 {
		is, err := sql.Interpolate(db.dialect, s, args, interpolateLimit)
		if err != nil {
			db.log.WarnContext(ctx, "orm: interpolate", "query", query, "args", args, "error", err)
			return
		}
		s = is
	}
	db.log.InfoContext(ctx, sql.Indent(s, db.depth)+";")
}

// clearIdentity empties the identity cache, if any.
func (db *DB) clearIdentity() {
	if db.identity != nil {
		db.identity.Clear()
	}
}
