package orm

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect"
)

func expectOrder(mock sqlmock.Sqlmock, id int64, lock int64) {
	mock.ExpectQuery("SELECT * FROM orders t1 WHERE id = ?").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(id, "A", int64(10), lock, nil))
}

func TestInsert(t *testing.T) {
	f := newFixture(t)

	t.Run("mysql", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO orders (code, lock_version) VALUES (?, ?)").
			WithArgs("A", 0).
			WillReturnResult(sqlmock.NewResult(5, 1))

		ctx := t.Context()
		o, err := db.New(f.orders, Set("code", "A"))
		require.NoError(t, err)
		assert.True(t, o.IsNew())
		assert.Equal(t, "Order(new)", o.String())
		out, err := o.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, Inserted, out)
		assert.False(t, o.IsNew())
		assert.Equal(t, int64(5), o.MustGet("id"))
		assert.Equal(t, "Order[5]", o.String())
		assert.False(t, o.IsChanged())

		v, err := o.Lookup("total")
		require.NoError(t, err)
		assert.Equal(t, NotLoaded, v.State, "only written columns are known")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres", func(t *testing.T) {
		db, mock := mockDB(t, dialect.Postgres)
		mock.ExpectQuery("INSERT INTO orders (code, lock_version) VALUES ($1, $2) RETURNING id").
			WithArgs("B", 0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

		o, err := db.New(f.orders, Set("code", "B"))
		require.NoError(t, err)
		require.NoError(t, o.Insert(t.Context()))
		assert.Equal(t, int64(9), o.MustGet("id"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		mock.ExpectExec("INSERT INTO orders (code, lock_version) VALUES (?, ?)").
			WithArgs("A", 0).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A' for key 'orders_code'"})

		o, err := db.New(f.orders, Set("code", "A"))
		require.NoError(t, err)
		err = o.Insert(t.Context())
		assert.True(t, vorm.IsValidationError(err))
		assert.True(t, vorm.IsConstraintError(err))
		var agg *vorm.AggregateError
		require.ErrorAs(t, err, &agg)
		assert.Len(t, agg.Errors, 2)
		assert.True(t, o.Errors().Has("", CodeTaken))
		assert.True(t, o.IsNew())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPendingBelongsTo(t *testing.T) {
	f := newFixture(t)
	db, mock := mockDB(t, dialect.MySQL)
	mock.ExpectExec("INSERT INTO orders (code, lock_version) VALUES (?, ?)").
		WithArgs("A", 0).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec("INSERT INTO line_items (order_id, qty) VALUES (?, ?)").
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := t.Context()
	o, err := db.New(f.orders, Set("code", "A"))
	require.NoError(t, err)
	it, err := db.New(f.items, Set("qty", 2))
	require.NoError(t, err)
	require.NoError(t, it.SetRelated("order", o))

	v, err := it.Get("order_id")
	require.NoError(t, err)
	assert.Nil(t, v, "the order has no key yet")
	got, err := it.Related(ctx, "order")
	require.NoError(t, err)
	assert.Same(t, o, got)

	require.NoError(t, o.Insert(ctx))
	assert.Equal(t, int64(5), it.MustGet("order_id"))
	require.NoError(t, it.Insert(ctx))
	require.NoError(t, mock.ExpectationsWereMet())

	err = it.SetRelated("order", it)
	assert.True(t, vorm.IsBuildError(err, vorm.BadArgument))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	db, mock := mockDB(t, dialect.MySQL)
	expectOrder(mock, 1, 0)
	mock.ExpectExec("UPDATE orders SET total = ?, lock_version = ?, updated_at = ? WHERE id = ? AND lock_version = ?").
		WithArgs(5, 1, testNow, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := t.Context()
	o, err := db.Find(ctx, f.orders, 1)
	require.NoError(t, err)

	out, err := o.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoChanges, out)

	require.NoError(t, o.Set("total", 5))
	assert.Equal(t, map[string]any{"total": 5}, o.Changes())
	out, err = o.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, Updated, out)
	assert.Equal(t, int64(5), o.MustGet("total"))
	assert.Equal(t, int64(1), o.MustGet("lock_version"))
	assert.Equal(t, testNow, o.MustGet("updated_at"))
	assert.False(t, o.IsChanged())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConflict(t *testing.T) {
	f := newFixture(t)

	t.Run("stale", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		expectOrder(mock, 1, 3)
		mock.ExpectExec("UPDATE orders SET total = ?, lock_version = ?, updated_at = ? WHERE id = ? AND lock_version = ?").
			WithArgs(5, 4, testNow, 1, 3).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ctx := t.Context()
		o, err := db.Find(ctx, f.orders, 1)
		require.NoError(t, err)
		require.NoError(t, o.Set("total", 5))
		out, err := o.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, Conflict, out)
		assert.True(t, o.Errors().Has("", CodeConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("assigned", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		expectOrder(mock, 1, 3)

		ctx := t.Context()
		o, err := db.Find(ctx, f.orders, 1)
		require.NoError(t, err)
		require.NoError(t, o.Set(LockVersion, 7))
		out, err := o.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, Conflict, out)
		require.NoError(t, mock.ExpectationsWereMet(), "no UPDATE is sent")
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	db, mock := mockDB(t, dialect.MySQL, WithIdentityCache(NewIdentityMap(0)))
	expectOrder(mock, 1, 0)
	mock.ExpectExec("DELETE FROM orders WHERE id = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := t.Context()
	o, err := db.Find(ctx, f.orders, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, db.IdentityCache().Len())
	ok, err := o.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, db.IdentityCache().Len())
	require.NoError(t, mock.ExpectationsWereMet())

	n, err := db.New(f.orders)
	require.NoError(t, err)
	_, err = n.Delete(ctx)
	assert.True(t, vorm.IsBuildError(err, vorm.BadArgument))
}

func messagesOf(r *Record) []string {
	var ms []string
	for _, e := range r.Errors().All() {
		ms = append(ms, e.Error())
	}
	return ms
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	t.Run("blank", func(t *testing.T) {
		db, _ := mockDB(t, dialect.MySQL)
		it, err := db.New(f.items)
		require.NoError(t, err)
		err = it.Validate(ctx)
		assert.True(t, vorm.IsValidationError(err))
		assert.Equal(t, []string{"Order is not selected", "Qty can't be blank"}, messagesOf(it))
		assert.Len(t, it.Errors().On("qty"), 1)
	})

	t.Run("too_long", func(t *testing.T) {
		db, _ := mockDB(t, dialect.MySQL)
		o, err := db.New(f.orders, Set("code", "ABCDEFGHIJ"))
		require.NoError(t, err)
		require.Error(t, o.Validate(ctx))
		assert.Equal(t, []string{"Code is too long (maximum is 8 < 10 characters)"}, messagesOf(o))
	})

	t.Run("taken", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		mock.ExpectQuery("SELECT EXISTS (SELECT 1 FROM orders t1 WHERE code = ?)").
			WithArgs("A").
			WillReturnRows(sqlmock.NewRows([]string{"taken"}).AddRow(int64(1)))
		o, err := db.New(f.orders, Set("code", "A"))
		require.NoError(t, err)
		require.Error(t, o.Validate(ctx))
		assert.Equal(t, []string{"Code has already been taken"}, messagesOf(o))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("valid", func(t *testing.T) {
		db, mock := mockDB(t, dialect.MySQL)
		mock.ExpectQuery("SELECT EXISTS (SELECT 1 FROM orders t1 WHERE code = ?)").
			WithArgs("Ünï").
			WillReturnRows(sqlmock.NewRows([]string{"taken"}).AddRow(int64(0)))
		o, err := db.New(f.orders, Set("code", "Ünï"))
		require.NoError(t, err)
		require.NoError(t, o.Validate(ctx))
		assert.Equal(t, 0, o.Errors().Len())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Order", Label("order_id"))
	assert.Equal(t, "Created At", Label("created_at"))
	assert.Equal(t, "Qty", Label("qty"))
}
