package orm

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/syssam/vorm"
)

// whereChunk is the number of terms buffered in the open where chunk
// before it is closed.
const whereChunk = 20

var reOrderBy = regexp.MustCompile(`(?i)^(?:(\w+)\.)?((\w+)(?: +(?:ASC|DESC))?)$`)

type stmtKind uint8

const (
	stmtSelect stmtKind = iota
	stmtUpdate
	stmtDelete
)

type cacheState uint8

const (
	cacheUnset cacheState = iota
	cacheOff
	cachePending
	cacheFilled
)

// term is one element of a compiled clause. A term with an alias renders
// as "alias.text" when the statement qualifies columns; connectors and raw
// fragments carry no alias.
type term struct {
	alias string
	text  string
	args  []any
}

type tableRef struct {
	alias string
	model *Model
}

// Query describes a SELECT, UPDATE or DELETE over a model. Every builder
// method returns a new Query and leaves the receiver unchanged, so a query
// can be branched freely:
//
//	open := db.Query(orders).Where(orm.Eq("status", "open"))
//	recent := open.OrderBy("created_at DESC").Limit(10)
//
// The first builder error is recorded on the query and reported by Err,
// SQL and every execution method; later builder calls are no-ops.
//
// Executing a query fills its result cache in place, so a single Query
// value must not be executed from several goroutines at once.
type Query struct {
	db    *DB
	model *Model
	alias string
	err   error

	kind       stmtKind
	selects    []*selBlock
	from       SQL
	groupBy    SQL
	having     SQL
	joins      []*join
	closed     [][]term
	open       []term
	orderBy    []term
	limit      int
	hasLimit   bool
	offset     int
	forUpdate  bool
	sets       []term
	deletes    []string
	page       *page
	noIdentity bool

	// Result state. clone resets the cache setting and drops the results.
	cstate   cacheState
	rows     []*Record
	total    int64
	hasTotal bool
}

func newQuery(db *DB, m *Model, alias string) *Query {
	q := &Query{db: db, model: m, alias: alias}
	if alias != "" && !validAlias(alias) {
		q.err = vorm.NewQueryBuildError(vorm.InvalidAlias, alias)
	}
	return q
}

func (q *Query) clone() *Query {
	c := *q
	c.cstate = cacheUnset
	c.rows = nil
	c.total, c.hasTotal = 0, false
	return &c
}

func (q *Query) fail(err error) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.err = err
	return c
}

// Err returns the first error recorded while building the query.
func (q *Query) Err() error { return q.err }

// Model returns the primary model of the query.
func (q *Query) Model() *Model { return q.model }

// Alias returns the alias of the primary table.
func (q *Query) Alias() string { return q.alias }

// DB returns the database the query is bound to, or nil.
func (q *Query) DB() *DB { return q.db }

// Bind returns a copy of the query bound to db.
func (q *Query) Bind(db *DB) *Query {
	c := q.clone()
	c.db = db
	return c
}

func (q *Query) String() string {
	return fmt.Sprintf("Query(%s, %q)", q.model, q.alias)
}

// tables lists the tables columns are resolved against: the primary table
// followed by every joined table.
func (q *Query) tables() []tableRef {
	ts := make([]tableRef, 0, len(q.joins)+1)
	ts = append(ts, tableRef{q.alias, q.model})
	for _, j := range q.joins {
		ts = append(ts, tableRef{j.alias, j.model})
	}
	return ts
}

// table returns the table aliased alias.
func (q *Query) table(alias string) (tableRef, error) {
	if alias == q.alias {
		return tableRef{alias, q.model}, nil
	}
	for _, j := range q.joins {
		if j.alias == alias {
			return tableRef{alias, j.model}, nil
		}
	}
	return tableRef{}, vorm.NewQueryBuildError(vorm.NoTableAlias, alias)
}

func (q *Query) hasAlias(alias string) bool {
	_, err := q.table(alias)
	return err == nil
}

// resolve finds the single table among ts having column col.
func resolve(ts []tableRef, col string) (string, error) {
	var found []string
	for _, t := range ts {
		if _, ok := t.model.Column(col); ok {
			found = append(found, t.alias)
		}
	}
	switch len(found) {
	case 0:
		return "", vorm.NewQueryBuildError(vorm.UnknownColumn, col)
	case 1:
		return found[0], nil
	}
	return "", vorm.NewQueryBuildError(vorm.AmbiguousColumn, col)
}

// Where conjoins exprs with AND and appends them to the WHERE clause with
// AND. Column conditions are resolved against every table of the query.
//
//	q.Where(orm.Eq("order_id", 1), orm.Raw("qty > ?", 2))
func (q *Query) Where(exprs ...Expr) *Query {
	return q.where("AND", nil, exprs)
}

// WhereOn is like Where with column conditions resolved against the table
// aliased alias only.
func (q *Query) WhereOn(alias string, exprs ...Expr) *Query {
	if q.err != nil {
		return q
	}
	t, err := q.table(alias)
	if err != nil {
		return q.fail(err)
	}
	return q.where("AND", []tableRef{t}, exprs)
}

// OrWhere appends exprs to the WHERE clause with OR.
//
//	q.Where(orm.Eq("a", 1)).OrWhere(orm.Eq("b", 2)) // WHERE a = ? OR b = ?
func (q *Query) OrWhere(exprs ...Expr) *Query {
	return q.where("OR", nil, exprs)
}

// OrWhereOn is the OrWhere form of WhereOn.
func (q *Query) OrWhereOn(alias string, exprs ...Expr) *Query {
	if q.err != nil {
		return q
	}
	t, err := q.table(alias)
	if err != nil {
		return q.fail(err)
	}
	return q.where("OR", []tableRef{t}, exprs)
}

func (q *Query) where(op string, ts []tableRef, exprs []Expr) *Query {
	if q.err != nil {
		return q
	}
	var xs []term
	add := func(t term) {
		if len(xs) > 0 {
			xs = append(xs, term{text: "AND"})
		}
		xs = append(xs, t)
	}
	for _, e := range exprs {
		switch e := e.(type) {
		case Operator:
			if !e.Empty() {
				add(term{text: e.text, args: e.args})
			}
		case SQL:
			if !e.Empty() {
				add(term{text: e.text, args: e.args})
			}
		case subquery:
			s, err := e.sql()
			if err != nil {
				return q.fail(err)
			}
			if !s.Empty() {
				add(term{text: s.text, args: s.args})
			}
		case Cond:
			if ts == nil {
				ts = q.tables()
			}
			alias, err := resolve(ts, e.col)
			if err != nil {
				return q.fail(err)
			}
			t, err := e.term(alias)
			if err != nil {
				return q.fail(err)
			}
			add(t)
		default:
			return q.fail(vorm.NewArgumentError("Where", "unsupported expression %T", e))
		}
	}
	if len(xs) == 0 {
		return q
	}
	c := q.clone()
	switch {
	case len(c.open) == 0:
		c.open = xs
	case len(c.open) < whereChunk:
		c.open = append(append(slices.Clip(c.open), term{text: op}), xs...)
	default:
		c.closed = append(slices.Clip(c.closed), c.open)
		c.open = append([]term{{text: op}}, xs...)
	}
	return c
}

// OrderBy sets the ORDER BY clause. Strings take the form
// "[alias.]column[ ASC|DESC]" and are resolved like Where conditions;
// SQL fragments are used verbatim.
func (q *Query) OrderBy(items ...any) *Query {
	if q.err != nil {
		return q
	}
	if len(items) == 0 {
		return q.fail(vorm.NewArgumentError("OrderBy", "no items"))
	}
	xs := make([]term, 0, len(items))
	for _, x := range items {
		switch x := x.(type) {
		case string:
			m := reOrderBy.FindStringSubmatch(x)
			if m == nil {
				return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, x))
			}
			ts := q.tables()
			if m[1] != "" {
				t, err := q.table(m[1])
				if err != nil {
					return q.fail(err)
				}
				ts = []tableRef{t}
			}
			alias, err := resolve(ts, m[3])
			if err != nil {
				return q.fail(err)
			}
			xs = append(xs, term{alias: alias, text: m[2]})
		case SQL:
			xs = append(xs, term{text: x.text, args: x.args})
		default:
			return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, fmt.Sprint(x)))
		}
	}
	c := q.clone()
	c.orderBy = xs
	return c
}

// ResetOrderBy removes the ORDER BY clause.
func (q *Query) ResetOrderBy() *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.orderBy = nil
	return c
}

// GroupBy sets the GROUP BY clause. An empty fragment removes it.
func (q *Query) GroupBy(s SQL) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.groupBy = s
	return c
}

// Having sets the HAVING clause. An empty fragment removes it.
func (q *Query) Having(s SQL) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.having = s
	return c
}

// From replaces the FROM clause body, by default "table alias". An empty
// fragment restores the default.
func (q *Query) From(s SQL) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.from = s
	return c
}

// Limit sets the LIMIT clause.
func (q *Query) Limit(n int) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.limit, c.hasLimit = n, true
	return c
}

// NoLimit removes the LIMIT clause.
func (q *Query) NoLimit() *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.limit, c.hasLimit = 0, false
	return c
}

// Offset sets the OFFSET clause. Zero removes it.
func (q *Query) Offset(n int) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.offset = n
	return c
}

// ForUpdate toggles the FOR UPDATE suffix of a SELECT.
func (q *Query) ForUpdate(on bool) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.forUpdate = on
	return c
}

// Identity toggles the identity cache for the records fetched by the
// query. It is on by default when the database has an identity cache.
func (q *Query) Identity(on bool) *Query {
	if q.err != nil {
		return q
	}
	c := q.clone()
	c.noIdentity = !on
	return c
}

// Update turns the query into an UPDATE of the primary table.
//
//	db.Query(items).Where(orm.Eq("order_id", 1)).Update(orm.Set("qty", 0)).Exec(ctx)
func (q *Query) Update(sets ...Assign) *Query {
	return q.update(tableRef{q.alias, q.model}, sets)
}

// UpdateOn turns the query into an UPDATE setting columns of the table
// aliased alias.
func (q *Query) UpdateOn(alias string, sets ...Assign) *Query {
	if q.err != nil {
		return q
	}
	t, err := q.table(alias)
	if err != nil {
		return q.fail(err)
	}
	return q.update(t, sets)
}

func (q *Query) update(t tableRef, sets []Assign) *Query {
	if q.err != nil {
		return q
	}
	if len(sets) == 0 {
		return q.fail(vorm.NewArgumentError("Update", "no assignments"))
	}
	xs := make([]term, 0, len(sets))
	for _, s := range sets {
		if _, ok := t.model.Column(s.col); !ok {
			return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, s.col))
		}
		switch v := s.v.(type) {
		case badRef:
			return q.fail(v.err)
		case SQL:
			xs = append(xs, term{alias: t.alias, text: s.col + " = " + v.text, args: v.args})
		default:
			xs = append(xs, term{alias: t.alias, text: s.col + " = ?", args: []any{v}})
		}
	}
	c := q.clone()
	c.kind = stmtUpdate
	c.sets = xs
	return c
}

// Delete turns the query into a DELETE. On MySQL the aliases name the
// tables rows are deleted from; the default is the primary table.
func (q *Query) Delete(aliases ...string) *Query {
	if q.err != nil {
		return q
	}
	for _, a := range aliases {
		if _, err := q.table(a); err != nil {
			return q.fail(err)
		}
	}
	if len(aliases) == 0 {
		aliases = []string{q.alias}
	}
	c := q.clone()
	c.kind = stmtDelete
	c.deletes = slices.Clone(aliases)
	return c
}
