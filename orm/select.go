package orm

import (
	"fmt"
	"slices"

	"github.com/syssam/vorm"
)

// selItem is a column name, "*" or a raw expression of a select block.
type selItem struct {
	name string
	raw  SQL
	expr bool
}

func (it selItem) String() string {
	if it.expr {
		return it.raw.text
	}
	return it.name
}

// selBlock is the contribution of one table to the SELECT list.
type selBlock struct {
	alias string
	model *Model
	items []selItem
}

func (b *selBlock) clone() *selBlock {
	c := *b
	c.items = slices.Clone(b.items)
	return &c
}

func (b *selBlock) has(name string) bool {
	return slices.ContainsFunc(b.items, func(it selItem) bool {
		return !it.expr && it.name == name
	})
}

func (b *selBlock) add(it selItem) {
	if it.expr {
		if !slices.ContainsFunc(b.items, func(x selItem) bool { return x.expr && x.raw.Equal(it.raw) }) {
			b.items = append(b.items, it)
		}
		return
	}
	if !b.has(it.name) {
		b.items = append(b.items, it)
	}
}

// width is the number of columns the block occupies in a row, or -1 when
// it selects "*" or raw expressions and ends at a border marker.
func (b *selBlock) width() int {
	for _, it := range b.items {
		if it.expr || it.name == "*" {
			return -1
		}
	}
	return len(b.items)
}

// covers reports whether the block fetches every default-select column of
// its model, which makes its records eligible for the identity cache.
func (b *selBlock) covers() bool {
	star := b.has("*")
	for _, s := range b.model.defaultSelect {
		if b.has(s) {
			continue
		}
		if _, ok := b.model.Column(s); !ok || !star {
			return false
		}
	}
	return true
}

// Select replaces the SELECT list. Column names, "*" and SQL expressions
// select from the primary table; Cols blocks select from joined tables;
// "*.*" selects every column of every table not otherwise listed.
//
//	db.Query(items).Join("order").Select(orm.Cols("t1", "*"), orm.Cols("t2", "*"))
//
// When several tables contribute, every block after the first is prefixed
// with its primary key, its first column must be NOT NULL and its table
// must be wired to an earlier block by the join.
func (q *Query) Select(items ...any) *Query {
	if q.err != nil {
		return q
	}
	if len(items) == 0 {
		return q.fail(vorm.NewArgumentError("Select", "no items"))
	}
	return q.selectInto(nil, items)
}

// WithSelect extends the SELECT list, starting from the default select of
// the primary model when the query has none.
func (q *Query) WithSelect(items ...any) *Query {
	if q.err != nil {
		return q
	}
	if len(items) == 0 {
		return q.fail(vorm.NewArgumentError("WithSelect", "no items"))
	}
	if len(q.selects) > 0 {
		return q.selectInto(slices.Clone(q.selects), items)
	}
	xs := make([]any, 0, len(q.model.defaultSelect)+len(items))
	for _, s := range q.model.defaultSelect {
		xs = append(xs, s)
	}
	return q.selectInto(nil, append(xs, items...))
}

type selEntry struct {
	alias string
	items []any
	def   bool
}

func (q *Query) selectInto(sel []*selBlock, items []any) *Query {
	var (
		args   []any
		blocks []Block
		all    bool
	)
	for _, it := range items {
		switch x := it.(type) {
		case Block:
			blocks = append(blocks, x)
		case string:
			if x == "*.*" {
				all = true
				continue
			}
			args = append(args, x)
		case SQL:
			args = append(args, x)
		default:
			return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, fmt.Sprint(x)))
		}
	}
	if all {
		for _, t := range q.tables() {
			if !slices.ContainsFunc(blocks, func(b Block) bool { return b.alias == t.alias }) {
				blocks = append(blocks, Cols(t.alias, "*"))
			}
		}
	}
	var entries []selEntry
	if len(args) > 0 {
		entries = append(entries, selEntry{alias: q.alias, items: args})
	}
	for _, b := range blocks {
		entries = append(entries, selEntry{alias: b.alias, items: b.items, def: len(b.items) == 0})
	}
	if len(entries) == 0 {
		return q.fail(vorm.NewArgumentError("Select", "no columns"))
	}

	n1 := max(len(sel), 1)
	var b0 *selBlock
	for _, e := range entries {
		t, err := q.table(e.alias)
		if err != nil {
			return q.fail(err)
		}
		i := slices.IndexFunc(sel, func(b *selBlock) bool { return b.alias == e.alias })
		var b *selBlock
		switch {
		case e.alias == q.alias && b0 != nil:
			b = b0
		case i >= 0:
			b = sel[i].clone()
			sel[i] = b
		case len(sel) > 0:
			b = &selBlock{alias: t.alias, model: t.model}
			for _, k := range t.model.pk {
				b.add(selItem{name: k})
			}
			sel = append(sel, b)
		default:
			b = &selBlock{alias: t.alias, model: t.model}
			sel = append(sel, b)
		}
		xs := e.items
		if e.def {
			xs = make([]any, len(t.model.defaultSelect))
			for i, s := range t.model.defaultSelect {
				xs[i] = s
			}
		}
		for _, x := range xs {
			switch x := x.(type) {
			case string:
				if _, ok := t.model.Column(x); !ok && x != "*" {
					return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, x))
				}
				b.add(selItem{name: x})
			case SQL:
				b.add(selItem{raw: x, expr: true})
			default:
				return q.fail(vorm.NewQueryBuildError(vorm.UnknownColumn, fmt.Sprint(x)))
			}
		}
		if e.alias == q.alias {
			b0 = b
		}
	}

	if len(sel) > n1 {
		if err := q.checkBlocks(sel); err != nil {
			return q.fail(err)
		}
	}
	c := q.clone()
	c.kind = stmtSelect
	c.selects = sel
	return c
}

func (q *Query) checkBlocks(sel []*selBlock) error {
	in := make(map[string]bool, len(sel))
	for _, b := range sel {
		in[b.alias] = true
	}
	reach := make(map[string]bool)
	for _, b := range sel {
		s1 := ""
		switch {
		case b.has("*") && len(b.model.columns) > 0:
			s1 = b.model.columns[0].Name
		case len(b.items) > 0:
			s1 = b.items[0].String()
		}
		if c, ok := b.model.Column(s1); !ok || c.Nullable {
			return vorm.NewQueryBuildError(vorm.NullableFirstColumn, b.alias+"."+s1)
		}
		j := q.joinOf(b.alias)
		if j != nil && j.source != "" && in[j.source] {
			if j.key != "" {
				reach[b.alias] = true
			}
			if j.reverse != "" {
				reach[j.source] = true
			}
		}
	}
	for i, b := range sel {
		if i > 0 && !reach[b.alias] {
			return vorm.NewQueryBuildError(vorm.UnreachableTable, b.alias)
		}
	}
	return nil
}
