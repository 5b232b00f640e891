package orm

import (
	"strings"

	"github.com/syssam/vorm/dialect"
)

type clause uint8

const (
	clauseSelect clause = iota
	clauseFrom
	clauseJoin
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseOrderBy
	clauseLimit
	clauseOffset
	clauseForUpdate
	clauseUpdate
	clauseSet
	clauseDelete
)

// Clause order per statement type.
var (
	selectClauses = []clause{clauseSelect, clauseFrom, clauseJoin, clauseWhere, clauseGroupBy, clauseHaving, clauseOrderBy, clauseLimit, clauseOffset, clauseForUpdate}
	bodyClauses   = []clause{clauseFrom, clauseJoin, clauseWhere, clauseGroupBy, clauseHaving}
	updateClauses = []clause{clauseUpdate, clauseJoin, clauseSet, clauseWhere, clauseOrderBy, clauseLimit}
	deleteClauses = []clause{clauseDelete, clauseFrom, clauseJoin, clauseWhere, clauseOrderBy, clauseLimit}
	whereClauses  = []clause{clauseWhere}

	// Postgres and SQLite have no multi-table UPDATE or DELETE; joined
	// tables move to a FROM or USING list and their predicates into WHERE.
	updateFromClauses = []clause{clauseUpdate, clauseSet, clauseJoin, clauseWhere, clauseOrderBy, clauseLimit}
)

// border separates the blocks of a multi-table SELECT list.
func border(name string) string {
	if name == dialect.Postgres {
		return `'|' AS "|"`
	}
	return "'|'"
}

type builder struct {
	q       *Query
	dialect string
	wp      bool // qualify columns with table aliases
	using   bool // joins rendered as a table list
	parts   []string
	args    []any
}

func (q *Query) dialect() string {
	if q.db != nil {
		return q.db.dialect
	}
	return dialect.MySQL
}

func (q *Query) build(cs []clause, wp bool) SQL {
	b := &builder{q: q, dialect: q.dialect(), wp: wp}
	if len(q.joins) > 0 && b.dialect != dialect.MySQL {
		b.using = cs[0] == clauseUpdate || cs[0] == clauseDelete
	}
	for _, c := range cs {
		b.clause(c)
	}
	return SQL{text: strings.Join(b.parts, " "), args: b.args}
}

func (q *Query) statementClauses() []clause {
	switch q.kind {
	case stmtUpdate:
		if len(q.joins) > 0 && q.dialect() != dialect.MySQL {
			return updateFromClauses
		}
		return updateClauses
	case stmtDelete:
		return deleteClauses
	}
	return selectClauses
}

func (b *builder) add(s string, args ...any) {
	b.parts = append(b.parts, s)
	b.args = append(b.args, args...)
}

func (b *builder) qualify(alias, s string) string {
	if b.wp && alias != "" {
		return alias + "." + s
	}
	return s
}

// terms renders ts and collects their values.
func (b *builder) terms(ts []term, qualify bool) []string {
	ss := make([]string, len(ts))
	for i, t := range ts {
		if qualify {
			ss[i] = b.qualify(t.alias, t.text)
		} else {
			ss[i] = t.text
		}
		b.args = append(b.args, t.args...)
	}
	return ss
}

// target renders the table of an UPDATE or DELETE.
func (b *builder) target() string {
	q := b.q
	switch {
	case q.alias == "":
		return q.model.table
	case b.dialect == dialect.SQLite && len(q.joins) == 0:
		return q.model.table
	case b.dialect == dialect.SQLite:
		return q.model.table + " AS " + q.alias
	}
	return q.model.table + " " + q.alias
}

func (b *builder) clause(c clause) {
	q := b.q
	switch c {
	case clauseSelect:
		b.selectList()
	case clauseFrom:
		switch {
		case !q.from.Empty():
			b.add("FROM "+q.from.text, q.from.args...)
		case q.kind != stmtSelect:
			b.add("FROM " + b.target())
		case q.alias != "":
			b.add("FROM " + q.model.table + " " + q.alias)
		default:
			b.add("FROM " + q.model.table)
		}
	case clauseJoin:
		if len(q.joins) == 0 {
			return
		}
		if b.using {
			ts := make([]string, len(q.joins))
			for i, j := range q.joins {
				ts[i] = j.model.table + " " + j.alias
			}
			kw := "USING "
			if q.kind == stmtUpdate {
				kw = "FROM "
			}
			b.add(kw + strings.Join(ts, ", "))
			return
		}
		for _, j := range q.joins {
			b.add(j.kind+" "+j.model.table+" "+j.alias+" ON "+j.on.text, j.on.args...)
		}
	case clauseWhere:
		b.where()
	case clauseGroupBy:
		if !q.groupBy.Empty() {
			b.add("GROUP BY "+q.groupBy.text, q.groupBy.args...)
		}
	case clauseHaving:
		if !q.having.Empty() {
			b.add("HAVING "+q.having.text, q.having.args...)
		}
	case clauseOrderBy:
		if len(q.orderBy) > 0 {
			b.add("ORDER BY " + strings.Join(b.terms(q.orderBy, true), ", "))
		}
	case clauseLimit:
		if q.hasLimit {
			b.add("LIMIT ?", q.limit)
		}
	case clauseOffset:
		if q.offset != 0 {
			b.add("OFFSET ?", q.offset)
		}
	case clauseForUpdate:
		if q.forUpdate {
			b.add("FOR UPDATE")
		}
	case clauseUpdate:
		b.add("UPDATE " + b.target())
	case clauseSet:
		b.add("SET " + strings.Join(b.terms(q.sets, b.dialect == dialect.MySQL), ", "))
	case clauseDelete:
		ts := strings.Join(q.deletes, ", ")
		if b.dialect == dialect.MySQL && ts != "" && len(q.orderBy) == 0 {
			b.add("DELETE " + ts)
		} else {
			b.add("DELETE")
		}
	}
}

func (b *builder) selectList() {
	q := b.q
	var ss []string
	if len(q.selects) == 0 {
		for _, s := range q.model.defaultSelect {
			ss = append(ss, b.qualify(q.alias, s))
		}
		b.add("SELECT " + strings.Join(ss, ", "))
		return
	}
	bd := border(b.dialect)
	for _, blk := range q.selects {
		star := blk.has("*")
		if star {
			ss = append(ss, b.qualify(blk.alias, "*"))
		}
		for _, it := range blk.items {
			switch {
			case it.expr:
				ss = append(ss, it.raw.text)
				b.args = append(b.args, it.raw.args...)
			case !star:
				ss = append(ss, b.qualify(blk.alias, it.name))
			}
		}
		if blk.width() < 0 {
			ss = append(ss, bd)
		}
	}
	if len(ss) > 0 && ss[len(ss)-1] == bd {
		ss = ss[:len(ss)-1]
	}
	b.add("SELECT " + strings.Join(ss, ", "))
}

func (b *builder) where() {
	q := b.q
	var ons []string
	if b.using {
		for _, j := range q.joins {
			ons = append(ons, "("+j.on.text+")")
			b.args = append(b.args, j.on.args...)
		}
	}
	if len(q.closed) == 0 && len(q.open) == 0 {
		if len(ons) > 0 {
			b.add("WHERE " + strings.Join(ons, " AND "))
		}
		return
	}
	var ss []string
	for _, chunk := range q.closed {
		ss = append(ss, b.terms(chunk, true)...)
	}
	ss = append(ss, b.terms(q.open, true)...)
	w := strings.Join(ss, " ")
	if len(ons) > 0 {
		b.add("WHERE " + strings.Join(ons, " AND ") + " AND (" + w + ")")
		return
	}
	b.add("WHERE " + w)
}

// SQL compiles the query. The statement is a SELECT unless Update or
// Delete was called.
func (q *Query) SQL() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	return q.build(q.statementClauses(), len(q.joins) > 0), nil
}

// CountSQL compiles "SELECT COUNT(1) FROM ..." over the FROM, JOIN, WHERE,
// GROUP BY and HAVING clauses. A grouped query counts its groups.
func (q *Query) CountSQL() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	s := q.build(bodyClauses, len(q.joins) > 0)
	if !q.groupBy.Empty() {
		return s.Wrap("SELECT COUNT(1) FROM (SELECT 1 %s) AS g"), nil
	}
	return s.Wrap("SELECT COUNT(1) %s"), nil
}

// ExistsSQL compiles "EXISTS (SELECT 1 FROM ...)" for use in the
// predicate of another query.
func (q *Query) ExistsSQL() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	return q.build(bodyClauses, len(q.joins) > 0).Wrap("EXISTS (SELECT 1 %s)"), nil
}

func (q *Query) existsQuery() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	return q.build(bodyClauses, len(q.joins) > 0).Wrap("SELECT 1 %s LIMIT 1"), nil
}

// WhereSQL returns the parenthesised WHERE body, or an empty fragment
// when the query has no conditions.
func (q *Query) WhereSQL() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	s := q.build(whereClauses, len(q.joins) > 0)
	if s.Empty() {
		return s, nil
	}
	return SQL{text: "(" + strings.TrimPrefix(s.text, "WHERE ") + ")", args: s.args}, nil
}

// WhereSQLVerbose returns the WHERE body with every column qualified by
// its table alias, unparenthesised. Join predicates are built this way.
func (q *Query) WhereSQLVerbose() (SQL, error) {
	if q.err != nil {
		return SQL{}, q.err
	}
	s := q.build(whereClauses, true)
	return SQL{text: strings.TrimPrefix(s.text, "WHERE "), args: s.args}, nil
}
