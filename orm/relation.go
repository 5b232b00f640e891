package orm

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/schema"
)

// reJoin finds the equi-join terms of a relation predicate rendered with
// the target aliased t2 and the owner aliased t1.
var reJoin = regexp.MustCompile(`t2\.(\w+) *= *t1\.(\w+)`)

// RelationKind enumerates the relation variants.
type RelationKind uint8

// Relation kinds.
const (
	KindBelongsTo RelationKind = iota + 1
	KindHasMany
	KindHasOne
)

func (k RelationKind) String() string {
	switch k {
	case KindBelongsTo:
		return "BelongsTo"
	case KindHasMany:
		return "HasMany"
	case KindHasOne:
		return "HasOne"
	}
	return fmt.Sprintf("RelationKind(%d)", k)
}

// Relation describes how an owner model relates to a target model. It
// produces sub-queries for a given owner and join predicates for the
// query builder.
type Relation struct {
	kind    RelationKind
	name    string
	target  string
	via     string
	where   func(*Query, Ref) *Query
	order   []any
	noCache bool
	column  *schema.Descriptor // belongs-to column
	base    *Relation
	extra   []Expr

	owner *Model
	model *Model

	once    sync.Once
	err     error
	build   func(*Query, Ref) *Query
	simple  [][2]string // (target column, owner column)
	reverse string      // belongs-to relation on the target pointing back
	fk      string      // has-one owner column holding the target key
}

// RelationOption configures a has-many or has-one relation.
type RelationOption func(*Relation)

// Via names the belongs-to column of the target that points to the
// owner. It is required when the target has several.
func Via(column string) RelationOption {
	return func(r *Relation) { r.via = column }
}

// WhereFunc relates the models by an arbitrary predicate. fn receives a
// query over the target and the owner; owner columns render as values
// for a record and as alias-qualified SQL inside join predicates.
//
//	orm.HasOne("last_item", "LineItem", orm.WhereFunc(func(q *orm.Query, o orm.Ref) *orm.Query {
//	    return q.Where(orm.Eq("order_id", o.Col("id")), orm.Eq("is_last", true))
//	}))
func WhereFunc(fn func(q *Query, owner Ref) *Query) RelationOption {
	return func(r *Relation) { r.where = fn }
}

// OrderBy orders the records of a relation query.
func OrderBy(items ...any) RelationOption {
	return func(r *Relation) { r.order = items }
}

// NoCache disables the result cache of has-many queries.
func NoCache() RelationOption {
	return func(r *Relation) { r.noCache = true }
}

// HasMany declares a one-to-many relation to the target model.
func HasMany(name, target string, opts ...RelationOption) *Relation {
	return newRelation(KindHasMany, name, target, opts)
}

// HasOne declares a one-to-one relation to the target model.
func HasOne(name, target string, opts ...RelationOption) *Relation {
	return newRelation(KindHasOne, name, target, opts)
}

func newRelation(kind RelationKind, name, target string, opts []RelationOption) *Relation {
	r := &Relation{kind: kind, name: name, target: target}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newBelongsTo(c *schema.Descriptor, target *Model) *Relation {
	return &Relation{
		kind:   KindBelongsTo,
		name:   c.As,
		target: target.name,
		column: c,
		model:  target,
	}
}

// On derives a relation whose queries carry extra predicates.
//
//	items.On(orm.Eq("shipped", false))
func (r *Relation) On(exprs ...Expr) *Relation {
	return &Relation{
		kind:   r.kind,
		name:   r.name,
		target: r.target,
		base:   r,
		extra:  exprs,
	}
}

// Name returns the relation name.
func (r *Relation) Name() string { return r.name }

// Kind returns the relation variant.
func (r *Relation) Kind() RelationKind { return r.kind }

// Owner returns the model declaring the relation.
func (r *Relation) Owner() *Model { return r.root().owner }

// Target returns the related model.
func (r *Relation) Target() *Model { return r.root().model }

func (r *Relation) String() string {
	if o := r.Owner(); o != nil {
		return o.name + "." + r.name
	}
	return r.name
}

// SimpleJoins returns the (target column, owner column) pairs of an
// equi-join relation, or nil when the predicate is arbitrary.
func (r *Relation) SimpleJoins() ([][2]string, error) {
	if err := r.resolve(); err != nil {
		return nil, err
	}
	return r.root().simple, nil
}

// Reverse returns the name of the target's belongs-to relation pointing
// back to the owner, if the relation has one.
func (r *Relation) Reverse() (string, error) {
	if err := r.resolve(); err != nil {
		return "", err
	}
	return r.root().reverse, nil
}

// joinKey is the attribute of the owner set by a join on the relation.
func (r *Relation) joinKey() string {
	if r.kind == KindHasMany {
		return ""
	}
	return r.name
}

func (r *Relation) root() *Relation {
	for r.base != nil {
		r = r.base
	}
	return r
}

func (r *Relation) resolve() error {
	r = r.root()
	r.once.Do(func() { r.err = r.doResolve() })
	return r.err
}

func (r *Relation) doResolve() error {
	m := r.model
	if m == nil {
		return fmt.Errorf("orm: relation %s is not sealed", r)
	}
	if r.kind == KindBelongsTo {
		pk, k := m.pk[0], r.column.Name
		r.build = func(q *Query, o Ref) *Query { return q.Where(Eq(pk, o.Col(k))) }
		r.simple = [][2]string{{pk, k}}
		return nil
	}
	var b2s []string
	for _, c := range r.owner.belongings[m] {
		b2s = append(b2s, c.Name)
	}
	if r.where != nil {
		r.build = r.where
		ws, err := r.where(m.As("t2"), Alias(r.owner, "t1")).WhereSQLVerbose()
		if err != nil {
			return err
		}
		js := reJoin.FindAllStringSubmatch(ws.text, -1)
		for _, j := range js {
			if slices.Contains(b2s, j[1]) {
				c, _ := m.Column(j[1])
				r.reverse = c.As
				break
			}
		}
		if len(js) == len(strings.Split(ws.text, " AND ")) {
			for _, j := range js {
				r.simple = append(r.simple, [2]string{j[1], j[2]})
			}
		}
	} else {
		w := r.via
		switch {
		case w == "" && len(b2s) == 0:
			return &vorm.QueryBuildError{Kind: vorm.UnknownRelation, Name: fmt.Sprintf("%q", r.String()), Msg: "no belongs-to column of " + m.name + " refers to " + r.owner.name}
		case w == "" && len(b2s) > 1:
			return vorm.NewQueryBuildError(vorm.AmbiguousRelation, r.String())
		case w == "":
			w = b2s[0]
		case !slices.Contains(b2s, w):
			return &vorm.QueryBuildError{Kind: vorm.UnknownRelation, Name: fmt.Sprintf("%q", r.String()), Msg: m.name + "." + w + " does not refer to " + r.owner.name}
		}
		pk, err := r.owner.singlePK()
		if err != nil {
			return err
		}
		r.build = func(q *Query, o Ref) *Query { return q.Where(Eq(w, o.Col(pk))) }
		c, _ := m.Column(w)
		r.reverse = c.As
		r.simple = [][2]string{{w, pk}}
	}
	if r.kind == KindHasOne && len(r.simple) == 1 && len(m.pk) == 1 && r.simple[0][0] == m.pk[0] {
		r.fk = r.simple[0][1]
	}
	return nil
}

// Query returns the query of the records related to owner, with the
// target aliased by its default alias.
func (r *Relation) Query(owner Ref) *Query {
	return r.query(owner, r.Target().alias)
}

// QueryAs is like Query with an explicit target alias.
func (r *Relation) QueryAs(owner Ref, alias string) *Query {
	return r.query(owner, alias)
}

// As returns a sub-query over the target correlated with the owner's
// default alias. An empty alias gives bare target columns, as used with
// Exists:
//
//	orders.Query().Where(orm.Exists(items.As("")))
func (r *Relation) As(alias string) *Query {
	o := r.Owner()
	return r.query(Alias(o, o.alias), alias)
}

func (r *Relation) query(owner Ref, alias string) *Query {
	if r.base != nil {
		return r.base.query(owner, alias).Where(r.extra...)
	}
	if err := r.resolve(); err != nil {
		return r.model.As(alias).fail(err)
	}
	if a, ok := owner.(aliasRef); ok && len(r.simple) > 0 {
		t1 := a.alias
		if t1 == "" {
			t1 = r.owner.alias
		}
		t2 := alias
		if t2 == t1 {
			t2 = ""
		}
		p2 := ""
		if t2 != "" {
			p2 = t2 + "."
		}
		terms := make([]string, len(r.simple))
		for i, j := range r.simple {
			terms[i] = p2 + j[0] + " = " + t1 + "." + j[1]
		}
		return r.model.As(t2).Where(Raw(strings.Join(terms, " AND ")))
	}
	q := r.build(r.model.As(alias), owner)
	if len(r.order) > 0 {
		q = q.OrderBy(r.order...)
	}
	return q
}
