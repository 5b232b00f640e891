package orm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect/sql"
	"github.com/syssam/vorm/schema"
)

func (q *Query) ready() error {
	if q.err != nil {
		return q.err
	}
	if q.db == nil {
		return vorm.ErrNoDB
	}
	return nil
}

// cached reports whether results are kept on the query: when enabled by
// Cache or Page, or by default when the query has a LIMIT.
func (q *Query) cached() bool {
	switch q.cstate {
	case cacheOff:
		return false
	case cachePending, cacheFilled:
		return true
	}
	return q.hasLimit
}

// Cache switches the result cache of q in place and returns q. A cached
// query is fetched once; All, Iter, Len, NotEmpty and At then read the
// kept records. Switching the cache off drops them.
func (q *Query) Cache(on bool) *Query {
	switch {
	case !on:
		q.cstate, q.rows = cacheOff, nil
	case q.cstate != cacheFilled:
		q.cstate = cachePending
	}
	return q
}

// Refresh drops the cached records and total count of q in place, so the
// next read fetches again, and returns q.
func (q *Query) Refresh() *Query {
	if q.cstate == cacheFilled {
		q.cstate = cachePending
	}
	q.rows = nil
	q.total, q.hasTotal = 0, false
	return q
}

func (q *Query) fill(ctx context.Context) error {
	if q.cstate == cacheFilled {
		return nil
	}
	var rs []*Record
	for r, err := range q.stream(ctx, false) {
		if err != nil {
			return err
		}
		rs = append(rs, r)
	}
	q.rows, q.cstate = rs, cacheFilled
	return nil
}

// stream runs the SELECT and yields one record per row.
func (q *Query) stream(ctx context.Context, peek bool) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		if err := q.ready(); err != nil {
			yield(nil, err)
			return
		}
		if q.kind != stmtSelect {
			yield(nil, vorm.NewArgumentError("Iter", "query is an UPDATE or DELETE"))
			return
		}
		s, err := q.SQL()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := q.db.QueryRows(ctx, s.text, s.args...)
		if err != nil {
			yield(nil, vorm.NewQueryError(q.model.table, "select", err))
			return
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}
		mt, err := newMaterializer(q, cols, peek)
		if err != nil {
			yield(nil, err)
			return
		}
		for rows.Next() {
			vs, err := scanRow(rows, len(cols))
			if err != nil {
				yield(nil, err)
				return
			}
			r, err := mt.row(vs)
			if err != nil {
				yield(nil, err)
				return
			}
			if r != nil && !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, vorm.NewQueryError(q.model.table, "select", err))
		}
	}
}

// All returns every record of the query.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	if q.cached() {
		if err := q.fill(ctx); err != nil {
			return nil, err
		}
		return slices.Clone(q.rows), nil
	}
	var rs []*Record
	for r, err := range q.stream(ctx, false) {
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// Iter returns an iterator over the records of the query. An uncached
// query keeps its cursor open while the loop runs.
//
//	for r, err := range db.Query(items).Iter(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
func (q *Query) Iter(ctx context.Context) iter.Seq2[*Record, error] {
	if !q.cached() {
		return q.stream(ctx, false)
	}
	return func(yield func(*Record, error) bool) {
		if err := q.fill(ctx); err != nil {
			yield(nil, err)
			return
		}
		for _, r := range q.rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Len returns the number of cached records. It fails with
// vorm.ErrUncached when the result cache is off.
func (q *Query) Len(ctx context.Context) (int, error) {
	if !q.cached() {
		return 0, vorm.ErrUncached
	}
	if err := q.fill(ctx); err != nil {
		return 0, err
	}
	return len(q.rows), nil
}

// NotEmpty reports whether the query has records. It fails with
// vorm.ErrUncached when the result cache is off; use Exists to ask the
// database instead.
func (q *Query) NotEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	return n > 0, err
}

// At returns the i-th cached record.
func (q *Query) At(ctx context.Context, i int) (*Record, error) {
	n, err := q.Len(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("orm: index %d out of range [0:%d]", i, n)
	}
	return q.rows[i], nil
}

// Peek returns the record of the first row, or nil when there is none.
// The query is run as is; use First to fetch a single row.
func (q *Query) Peek(ctx context.Context) (*Record, error) {
	for r, err := range q.stream(ctx, true) {
		return r, err
	}
	return nil, nil
}

// First is Peek with a LIMIT of 1.
func (q *Query) First(ctx context.Context) (*Record, error) {
	return q.Limit(1).Peek(ctx)
}

// Exec runs an UPDATE or DELETE query and returns the number of affected
// rows.
func (q *Query) Exec(ctx context.Context) (int64, error) {
	if err := q.ready(); err != nil {
		return 0, err
	}
	op := "update"
	switch q.kind {
	case stmtSelect:
		return 0, vorm.NewArgumentError("Exec", "query is a SELECT")
	case stmtDelete:
		op = "delete"
	}
	s, err := q.SQL()
	if err != nil {
		return 0, err
	}
	n, err := q.db.Exec(ctx, s.text, s.args...)
	if err != nil {
		return 0, vorm.NewMutationError(q.model.table, op, err)
	}
	return n, nil
}

func (q *Query) scalar(ctx context.Context, op string, s SQL) (any, error) {
	row, err := q.db.QueryRow(ctx, s.text, s.args...)
	if err != nil {
		return nil, vorm.NewQueryError(q.model.table, op, err)
	}
	if len(row) == 0 {
		return nil, nil
	}
	return row[0], nil
}

// Count returns the number of rows matched by the query, ignoring LIMIT
// and OFFSET.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if err := q.ready(); err != nil {
		return 0, err
	}
	s, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	v, err := q.scalar(ctx, "count", s)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	n, err := (&schema.Descriptor{Name: "count", Type: schema.TypeBigInt}).Decode(v)
	if err != nil {
		return 0, err
	}
	return n.(int64), nil
}

// TotalCount is like Count but keeps the result on q.
func (q *Query) TotalCount(ctx context.Context) (int64, error) {
	if q.hasTotal {
		return q.total, nil
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, err
	}
	q.total, q.hasTotal = n, true
	return n, nil
}

// SetTotalCount sets the total count of q in place, as when it is known
// from elsewhere, and returns q.
func (q *Query) SetTotalCount(n int64) *Query {
	q.total, q.hasTotal = n, true
	return q
}

// Exists reports whether the query matches a row.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	if err := q.ready(); err != nil {
		return false, err
	}
	s, err := q.existsQuery()
	if err != nil {
		return false, err
	}
	row, err := q.db.QueryRow(ctx, s.text, s.args...)
	if err != nil {
		return false, vorm.NewQueryError(q.model.table, "exists", err)
	}
	return row != nil, nil
}

// Pluck selects cols ("[alias.]column" names or SQL expressions) and
// returns a cursor over their values, decoded per column.
//
//	c, err := db.Query(items).Join("order").Pluck(ctx, "t2.id", "qty")
func (q *Query) Pluck(ctx context.Context, cols ...any) (*Cursor, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, vorm.NewArgumentError("Pluck", "no columns")
	}
	b := &selBlock{alias: q.alias, model: q.model}
	decs := make([]*schema.Descriptor, len(cols))
	for i, x := range cols {
		switch x := x.(type) {
		case string:
			m := reOrderBy.FindStringSubmatch(x)
			if m == nil || m[2] != m[3] {
				return nil, vorm.NewQueryBuildError(vorm.UnknownColumn, x)
			}
			ts := q.tables()
			if m[1] != "" {
				t, err := q.table(m[1])
				if err != nil {
					return nil, err
				}
				ts = []tableRef{t}
			}
			alias, err := resolve(ts, m[3])
			if err != nil {
				return nil, err
			}
			t, _ := q.table(alias)
			decs[i], _ = t.model.Column(m[3])
			text := m[3]
			if alias != "" && (len(q.joins) > 0 || m[1] != "") {
				text = alias + "." + m[3]
			}
			b.items = append(b.items, selItem{raw: Raw(text), expr: true})
		case SQL:
			b.items = append(b.items, selItem{raw: x, expr: true})
		default:
			return nil, vorm.NewQueryBuildError(vorm.UnknownColumn, fmt.Sprint(x))
		}
	}
	c := q.clone()
	c.kind = stmtSelect
	c.selects = []*selBlock{b}
	s, err := c.SQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryRows(ctx, s.text, s.args...)
	if err != nil {
		return nil, vorm.NewQueryError(q.model.table, "pluck", err)
	}
	return &Cursor{rows: rows, decs: decs}, nil
}

// Cursor iterates over the rows of Pluck. It must be closed unless it is
// drained by All, Seq or a Next that returned false.
type Cursor struct {
	rows   *sql.Rows
	decs   []*schema.Descriptor
	cur    []any
	err    error
	closed bool
}

// Next advances to the next row.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.err = errors.Join(c.err, c.Close())
		return false
	}
	vs, err := scanRow(c.rows, len(c.decs))
	if err != nil {
		c.err = errors.Join(err, c.Close())
		return false
	}
	for i, d := range c.decs {
		if d == nil {
			if b, ok := vs[i].([]byte); ok {
				vs[i] = string(b)
			}
			continue
		}
		if vs[i], err = d.Decode(vs[i]); err != nil {
			c.err = errors.Join(err, c.Close())
			return false
		}
	}
	c.cur = vs
	return true
}

// Value returns the first column of the current row.
func (c *Cursor) Value() any {
	if len(c.cur) == 0 {
		return nil
	}
	return c.cur[0]
}

// Values returns the columns of the current row.
func (c *Cursor) Values() []any { return c.cur }

// Err returns the error that stopped the iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Close closes the cursor.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// Seq returns an iterator over the rows: scalars for a single column,
// []any tuples otherwise.
func (c *Cursor) Seq() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		defer c.Close()
		for c.Next() {
			var v any = c.cur
			if len(c.decs) == 1 {
				v = c.cur[0]
			}
			if !yield(v, nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}

// All drains the cursor like Seq.
func (c *Cursor) All() ([]any, error) {
	var vs []any
	for v, err := range c.Seq() {
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}
