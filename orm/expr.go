package orm

import (
	"fmt"

	"github.com/syssam/vorm"
)

// Expr is a predicate accepted by Query.Where: an SQL fragment
// conjoined verbatim, a column condition built by Eq, or a sub-query
// built by Exists or Group.
type Expr interface {
	expr()
}

func (SQL) expr() {}

// Cond is a condition on a column resolved against the tables of the
// query.
type Cond struct {
	col string
	v   any
}

func (Cond) expr() {}

// Eq returns a condition on column: nil compiles to "col IS NULL", an
// Operator to "col <op>", an SQL fragment to "col = <sql>" and any other
// value to "col = ?".
//
//	q.Where(orm.Eq("status", "open"), orm.Eq("total", orm.GE(100)))
func Eq(col string, v any) Cond {
	return Cond{col: col, v: v}
}

// Column returns the column name of the condition.
func (c Cond) Column() string { return c.col }

// Value returns the value of the condition.
func (c Cond) Value() any { return c.v }

func (c Cond) term(alias string) (term, error) {
	switch v := c.v.(type) {
	case nil:
		return term{alias: alias, text: c.col + " IS NULL"}, nil
	case badRef:
		return term{}, v.err
	case Operator:
		return term{alias: alias, text: c.col + " " + v.text, args: v.args}, nil
	case SQL:
		return term{alias: alias, text: c.col + " = " + v.text, args: v.args}, nil
	}
	return term{alias: alias, text: c.col + " = ?", args: []any{c.v}}, nil
}

type subquery struct {
	q      *Query
	exists bool
}

func (subquery) expr() {}

func (s subquery) sql() (SQL, error) {
	if s.exists {
		return s.q.ExistsSQL()
	}
	return s.q.WhereSQL()
}

// Exists embeds "EXISTS (SELECT 1 ...)" of q into the predicate.
//
//	q.Where(orm.Exists(items.As("").Where(orm.Raw("line_items.order_id = t1.id"))))
func Exists(q *Query) Expr { return subquery{q: q, exists: true} }

// Group embeds the parenthesised WHERE body of q, grouping OR terms.
func Group(q *Query) Expr { return subquery{q: q} }

// Assign is a column assignment of an UPDATE statement.
type Assign struct {
	col string
	v   any
}

// Set returns an assignment of v to col. An SQL value is used verbatim:
//
//	orm.Set("hits", orm.Raw("hits + 1"))
func Set(col string, v any) Assign {
	return Assign{col: col, v: v}
}

// Block selects columns of one table of the query.
type Block struct {
	alias string
	items []any
}

// Cols selects items (column names, "*" or SQL expressions) from the
// table aliased alias. With no items the model's default select is used.
//
//	q.Join("order").Select(orm.Cols("t1", "*"), orm.Cols("t2", "id", "total"))
func Cols(alias string, items ...any) Block {
	return Block{alias: alias, items: items}
}

// Ref gives access to the columns of a relation owner: a record, or an
// aliased table in a join predicate.
type Ref interface {
	Col(name string) any
}

type aliasRef struct {
	model *Model
	alias string
}

// Alias returns a Ref whose columns render as alias-qualified SQL, as
// used to build join predicates.
func Alias(m *Model, alias string) Ref {
	return aliasRef{model: m, alias: alias}
}

func (a aliasRef) Col(name string) any {
	if _, ok := a.model.Column(name); !ok {
		return badRef{err: vorm.NewQueryBuildError(vorm.UnknownColumn, a.model.name+"."+name)}
	}
	if a.alias == "" {
		return Raw(name)
	}
	return Raw(a.alias + "." + name)
}

// badRef carries a failed column access through Eq into the query.
type badRef struct {
	err error
}

func (b badRef) String() string { return fmt.Sprintf("<%v>", b.err) }
