package orm

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/dialect/sql"
	"github.com/syssam/vorm/schema"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	reg    *Registry
	orders *Model
	items  *Model
}

// newFixture declares an order with line items:
//
//	orders(id, code, total, lock_version, updated_at)
//	line_items(id, order_id, qty, note)
func newFixture(t testing.TB) *fixture {
	t.Helper()
	reg := NewRegistry()
	orders := reg.Define("Order", Columns(
		schema.Int("id").Primary().AutoIncrement(),
		schema.String("code").Size(8).Unique(),
		schema.Int("total").Null(),
		schema.Int("lock_version").Default(0),
		schema.Time("updated_at").Null(),
	), Relations(
		HasMany("line_items", "LineItem"),
	))
	items := reg.Define("LineItem", Columns(
		schema.Int("id").Primary().AutoIncrement(),
		schema.BelongsTo("order_id", "Order"),
		schema.Int("qty"),
		schema.String("note").Null(),
	))
	require.NoError(t, reg.Seal())
	return &fixture{reg: reg, orders: orders, items: items}
}

// mockDB returns a DB over sqlmock matching statements exactly.
func mockDB(t *testing.T, name string, opts ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewDB(sql.OpenDB(name, conn), opts...), mock
}

// sqliteDB returns a DB over a private in-memory SQLite database with
// the fixture tables created.
func sqliteDB(t *testing.T, f *fixture, opts ...Option) *DB {
	t.Helper()
	drv, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	db := NewDB(drv, opts...)
	t.Cleanup(func() { db.Close() })
	if f != nil {
		for _, m := range []*Model{f.orders, f.items} {
			for _, s := range m.DDL(dialect.SQLite) {
				_, err := db.Exec(t.Context(), s)
				require.NoError(t, err, s)
			}
		}
	}
	return db
}

var (
	orderCols = []string{"id", "code", "total", "lock_version", "updated_at"}
	itemCols  = []string{"id", "order_id", "qty", "note"}
)
