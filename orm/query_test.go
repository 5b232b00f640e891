package orm

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect"
)

func TestFragment(t *testing.T) {
	s := Raw("a = ? AND b = ?", 1, "x")
	assert.Equal(t, "a = ? AND b = ?", s.String())
	assert.Equal(t, []any{1, "x"}, s.Args())

	w := s.Wrap("(%s) AS x")
	assert.Equal(t, "(a = ? AND b = ?) AS x", w.String())
	assert.Equal(t, []any{1, "x"}, w.Args())
	assert.Equal(t, "a = ? AND b = ?", s.String(), "wrap leaves the receiver unchanged")

	assert.True(t, Raw("").Empty())
	assert.True(t, Raw("a = ?", []byte("x")).Equal(Raw("a = ?", []byte("x"))))
	assert.False(t, Raw("a = ?", 1).Equal(Raw("a = ?", 2)))
	assert.Equal(t, "(SELECT 1) AS one", Raw("SELECT 1").As("one").String())
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		text string
		args []any
	}{
		{"in", In(1, 2, 3), "IN (?, ?, ?)", []any{1, 2, 3}},
		{"in_empty", In(), "IN (NULL)", nil},
		{"in_sub", In(Raw("SELECT id FROM orders WHERE total > ?", 5)), "IN (SELECT id FROM orders WHERE total > ?)", []any{5}},
		{"in_slice", InSlice([]string{"a", "b"}), "IN (?, ?)", []any{"a", "b"}},
		{"between", Between(1, 9), "BETWEEN ? AND ?", []any{1, 9}},
		{"not_nil", Not(nil), "IS NOT NULL", nil},
		{"not_value", Not(3), "!= ?", []any{3}},
		{"not_op", Not(In(1)), "NOT IN (?)", []any{1}},
		{"ge", GE(1), ">= ?", []any{1}},
		{"like", Like("a%"), "LIKE ?", []any{"a%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.op.String())
			assert.Equal(t, tt.args, tt.op.Args())
		})
	}
}

func TestInSeq(t *testing.T) {
	seq := func(yield func(int) bool) {
		for i := range 3 {
			if !yield(i * 10) {
				return
			}
		}
	}
	op := InSeq(seq)
	assert.Equal(t, "IN (?, ?, ?)", op.String())
	assert.Equal(t, []any{0, 10, 20}, op.Args())
}

func TestWhere(t *testing.T) {
	f := newFixture(t)
	q := f.items.As("")

	tests := []struct {
		name string
		q    *Query
		text string
		args []any
	}{
		{"none", q, "SELECT * FROM line_items", nil},
		{"and", q.Where(Eq("order_id", 1)).Where(Eq("qty", 2)), "SELECT * FROM line_items WHERE order_id = ? AND qty = ?", []any{1, 2}},
		{"conjoined", q.Where(Eq("order_id", 1), Eq("qty", 2)), "SELECT * FROM line_items WHERE order_id = ? AND qty = ?", []any{1, 2}},
		{"or", q.Where(Eq("order_id", 1)).OrWhere(Eq("qty", 2)), "SELECT * FROM line_items WHERE order_id = ? OR qty = ?", []any{1, 2}},
		{"null", q.Where(Eq("note", nil)), "SELECT * FROM line_items WHERE note IS NULL", nil},
		{"operator", q.Where(Eq("qty", Between(1, 3))), "SELECT * FROM line_items WHERE qty BETWEEN ? AND ?", []any{1, 3}},
		{"in_null", q.Where(Eq("id", In())), "SELECT * FROM line_items WHERE id IN (NULL)", nil},
		{"raw", q.Where(Raw("qty > ?", 4)), "SELECT * FROM line_items WHERE qty > ?", []any{4}},
		{"group", q.Where(Eq("order_id", 1)).Where(Group(q.Where(Eq("qty", 1)).OrWhere(Eq("qty", 2)))), "SELECT * FROM line_items WHERE order_id = ? AND (qty = ? OR qty = ?)", []any{1, 1, 2}},
		{"order_limit", q.OrderBy("qty DESC", "id").Limit(5).Offset(10), "SELECT * FROM line_items ORDER BY qty DESC, id LIMIT ? OFFSET ?", []any{5, 10}},
		{"for_update", q.Where(Eq("id", 1)).ForUpdate(true), "SELECT * FROM line_items WHERE id = ? FOR UPDATE", []any{1}},
		{"select", q.Select("id", "qty"), "SELECT id, qty FROM line_items", nil},
		{"with_select", q.WithSelect(Raw("qty * ? AS twice", 2)), "SELECT *, qty * ? AS twice FROM line_items", []any{2}},
		{"alias", f.items.Query().Where(Eq("qty", 2)), "SELECT * FROM line_items t1 WHERE qty = ?", []any{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.q.SQL()
			require.NoError(t, err)
			assert.Equal(t, tt.text, s.String())
			assert.Equal(t, tt.args, s.Args())
		})
	}
}

func TestQueryImmutable(t *testing.T) {
	f := newFixture(t)
	q := f.items.Query()
	before, err := q.SQL()
	require.NoError(t, err)

	derived := []*Query{
		q.Where(Eq("qty", 1)),
		q.OrWhere(Eq("qty", 1)),
		q.OrderBy("id"),
		q.Limit(1),
		q.Offset(2),
		q.Select("id"),
		q.Join("order"),
		q.Page(2, 10),
		q.Update(Set("qty", 0)),
		q.Delete(),
	}
	for _, d := range derived {
		assert.NotSame(t, q, d)
		require.NoError(t, d.Err())
	}
	after, err := q.SQL()
	require.NoError(t, err)
	assert.True(t, before.Equal(after))

	// Branches of a shared parent do not see each other.
	p := q.Where(Eq("order_id", 1))
	a := p.Where(Eq("qty", 1))
	b := p.Where(Eq("qty", 2))
	sa, _ := a.SQL()
	sb, _ := b.SQL()
	assert.Equal(t, []any{1, 1}, sa.Args())
	assert.Equal(t, []any{1, 2}, sb.Args())
}

func TestWhereChunks(t *testing.T) {
	f := newFixture(t)
	q := f.items.As("")
	want := []any{}
	for i := range 45 {
		q = q.Where(Eq("qty", i))
		want = append(want, i)
	}
	s, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, want, s.Args())
	assert.Contains(t, s.String(), "WHERE qty = ? AND qty = ?")
}

func TestCompileGolden(t *testing.T) {
	f := newFixture(t)
	pg := NewDB(dialect.Nop(dialect.Postgres))
	lite := NewDB(dialect.Nop(dialect.SQLite))
	lines, _ := f.orders.Relation("line_items")

	tests := []struct {
		name string
		q    *Query
	}{
		{"join_select", f.items.Query().Join("order").Select(Cols("t1", "*"), Cols("t2", "*"))},
		{"join_select_columns", f.items.Query().Join("order").Select(Cols("t1", "id", "qty"), Cols("t2", "code"))},
		{"left_join_where", f.items.Query().LeftJoin("order").Where(Eq("total", GT(100)), Eq("qty", 1)).OrderBy("t2.id DESC")},
		{"join_has_many", f.orders.Query().Join("line_items")},
		{"exists", f.orders.Query().Where(Exists(lines.As("")))},
		{"update_mysql", f.items.Query().Join("order").Where(Eq("total", 5)).Update(Set("qty", 0))},
		{"update_postgres", pg.Query(f.items).Join("order").Where(Eq("total", 5)).Update(Set("qty", 0))},
		{"update_sqlite", lite.Query(f.items).Where(Eq("qty", 0)).Update(Set("qty", Raw("qty + ?", 1)))},
		{"delete_mysql", f.items.Query().Where(Eq("qty", 0)).Delete()},
		{"delete_plain", f.items.As("").Where(Eq("id", 3)).Delete()},
		{"delete_postgres_join", pg.Query(f.items).Join("order").Where(Eq("total", 0)).Delete()},
		{"page", f.orders.As("").Page(3, 10)},
	}
	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.q.SQL()
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(fmt.Sprintf("%s\n-- %v\n", s, s.Args())))
		})
	}
}

func TestCountSQL(t *testing.T) {
	f := newFixture(t)
	q := f.items.As("").Where(Eq("qty", GT(1))).OrderBy("id").Limit(3)
	s, err := q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM line_items WHERE qty > ?", s.String())
	assert.Equal(t, []any{1}, s.Args())

	s, err = f.items.As("").GroupBy(Raw("order_id")).CountSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(1) FROM (SELECT 1 FROM line_items GROUP BY order_id) AS g", s.String())
}

func TestBuildErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		q    *Query
		kind vorm.BuildErrorKind
	}{
		{"unknown_column", f.items.Query().Where(Eq("nope", 1)), vorm.UnknownColumn},
		{"ambiguous_column", f.items.Query().Join("order").Where(Eq("id", 1)), vorm.AmbiguousColumn},
		{"unknown_relation", f.items.Query().Join("nope"), vorm.UnknownRelation},
		{"invalid_alias", f.items.As("1x"), vorm.InvalidAlias},
		{"duplicate_alias", f.items.Query().Join("order", As("t1")), vorm.DuplicateAlias},
		{"no_alias", f.items.As("").Join("order"), vorm.NoTableAlias},
		{"unknown_table", f.items.Query().WhereOn("t9", Eq("qty", 1)), vorm.NoTableAlias},
		{"unreachable", f.items.Query().JoinModel(f.orders, Raw("t2.id = t1.order_id")).Select(Cols("t1", "*"), Cols("t2", "*")), vorm.UnreachableTable},
		{"update_unknown", f.items.Query().Update(Set("nope", 1)), vorm.UnknownColumn},
		{"order_by", f.items.Query().OrderBy("qty SIDEWAYS"), vorm.UnknownColumn},
		{"nullable_first", f.items.Query().Join("order").Select(Cols("t1", "note", "qty"), Cols("t2", "*")), vorm.NullableFirstColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Err()
			require.Error(t, err)
			assert.True(t, vorm.IsBuildError(err, tt.kind), "got %v", err)
			assert.ErrorIs(t, err, vorm.ErrInvalidQuery)
			_, err = tt.q.SQL()
			assert.Error(t, err)
		})
	}
}

func TestFirstErrorWins(t *testing.T) {
	f := newFixture(t)
	q := f.items.Query().Where(Eq("nope", 1)).Join("missing").OrderBy("other")
	assert.True(t, vorm.IsBuildError(q.Err(), vorm.UnknownColumn))
}

func TestJoinAliases(t *testing.T) {
	f := newFixture(t)
	q := f.items.Query().Join("order").JoinModel(f.orders, Raw("t3.id = t1.order_id"))
	require.NoError(t, q.Err())
	s, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT t1.* FROM line_items t1 JOIN orders t2 ON t2.id = t1.order_id JOIN orders t3 ON t3.id = t1.order_id", s.String())

	q = f.items.Query().LeftJoin("order", As("o"))
	_, err = q.Where(Eq("o.code", "A")).SQL()
	require.Error(t, err, "a qualified name is not a column")
	s, err = q.WhereOn("o", Eq("code", "A")).SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT t1.* FROM line_items t1 LEFT JOIN orders o ON o.id = t1.order_id WHERE o.code = ?", s.String())
}

func TestRelationQuery(t *testing.T) {
	f := newFixture(t)
	lines, ok := f.orders.Relation("line_items")
	require.True(t, ok)
	assert.Equal(t, KindHasMany, lines.Kind())
	assert.Same(t, f.items, lines.Target())

	joins, err := lines.SimpleJoins()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"order_id", "id"}}, joins)
	rev, err := lines.Reverse()
	require.NoError(t, err)
	assert.Equal(t, "order", rev)

	s, err := lines.QueryAs(Alias(f.orders, "o"), "li").WhereSQLVerbose()
	require.NoError(t, err)
	assert.Equal(t, "li.order_id = o.id", s.String())

	open := lines.On(Eq("qty", GT(0)))
	s, err = open.As("t2").SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM line_items t2 WHERE t2.order_id = t1.id AND qty > ?", s.String())
	assert.Same(t, f.orders, open.Owner())
}
