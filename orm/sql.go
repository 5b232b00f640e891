package orm

import (
	"iter"
	"slices"
	"strings"
)

// SQL is an immutable SQL fragment: a template with ? placeholders and
// the values bound to them, in order.
type SQL struct {
	text string
	args []any
}

// Raw returns a fragment for text bound to args.
//
//	orm.Raw("created_at > NOW() - INTERVAL ? DAY", 7)
func Raw(text string, args ...any) SQL {
	return SQL{text: text, args: args}
}

// String returns the template.
func (s SQL) String() string { return s.text }

// Args returns a copy of the bound values.
func (s SQL) Args() []any { return slices.Clone(s.args) }

// Empty reports whether the template is empty.
func (s SQL) Empty() bool { return s.text == "" }

// Equal reports whether s and o have the same template and values.
func (s SQL) Equal(o SQL) bool {
	if s.text != o.text || len(s.args) != len(o.args) {
		return false
	}
	for i := range s.args {
		if !sameValue(s.args[i], o.args[i]) {
			return false
		}
	}
	return true
}

// Wrap returns a fragment whose template is format with its single %s
// replaced by the template of s. Values are unchanged.
//
//	orm.Raw("SELECT 1").Wrap("EXISTS (%s)")
func (s SQL) Wrap(format string) SQL {
	return SQL{text: strings.Replace(format, "%s", s.text, 1), args: s.args}
}

// As wraps s as a named sub-select.
func (s SQL) As(alias string) SQL {
	return s.Wrap("(%s) AS " + alias)
}

func (s SQL) concat(sep string, o SQL) SQL {
	switch {
	case s.text == "":
		return o
	case o.text == "":
		return s
	}
	return SQL{
		text: s.text + sep + o.text,
		args: append(slices.Clip(s.args), o.args...),
	}
}

// Operator is a predicate fragment missing its left-hand column, such as
// ">= ?". The query builder prefixes it with a column name.
type Operator struct {
	SQL
}

func op(text string, args ...any) Operator {
	return Operator{SQL{text: text, args: args}}
}

// Between returns "BETWEEN ? AND ?".
func Between(a, b any) Operator { return op("BETWEEN ? AND ?", a, b) }

// GE returns ">= ?".
func GE(v any) Operator { return op(">= ?", v) }

// GT returns "> ?".
func GT(v any) Operator { return op("> ?", v) }

// LE returns "<= ?".
func LE(v any) Operator { return op("<= ?", v) }

// LT returns "< ?".
func LT(v any) Operator { return op("< ?", v) }

// NE returns "!= ?".
func NE(v any) Operator { return op("!= ?", v) }

// Like returns "LIKE ?".
func Like(v any) Operator { return op("LIKE ?", v) }

// In returns "IN (?, ...)". With no values it returns "IN (NULL)",
// which matches no row. A single SQL value is used as a sub-query.
//
//	orm.In(1, 2, 3)
//	sub, err := db.Query(orders).Select("id").Where(orm.Eq("open", true)).SQL()
//	orm.In(sub)
func In(vs ...any) Operator {
	if len(vs) == 1 {
		if s, ok := vs[0].(SQL); ok {
			return Operator{s.Wrap("IN (%s)")}
		}
	}
	if len(vs) == 0 {
		return op("IN (NULL)")
	}
	return op("IN ("+placeholders(len(vs))+")", vs...)
}

// InSlice is In over a typed slice.
func InSlice[T any](vs []T) Operator {
	args := make([]any, len(vs))
	for i, v := range vs {
		args[i] = v
	}
	return In(args...)
}

// InSeq is In over the values yielded by seq.
func InSeq[T any](seq iter.Seq[T]) Operator {
	var args []any
	for v := range seq {
		args = append(args, v)
	}
	return In(args...)
}

// Not negates x: nil gives "IS NOT NULL", an SQL fragment or Operator is
// prefixed with NOT, any other value gives "!= ?".
func Not(x any) Operator {
	switch x := x.(type) {
	case nil:
		return op("IS NOT NULL")
	case Operator:
		return Operator{x.Wrap("NOT %s")}
	case SQL:
		return Operator{x.Wrap("NOT %s")}
	}
	return NE(x)
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
