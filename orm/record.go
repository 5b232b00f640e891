package orm

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/vorm"
)

// State tells whether a record holds a value for a column.
type State uint8

// Column states.
const (
	NotLoaded State = iota
	Loaded
	LoadedNull
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "Loaded"
	case LoadedNull:
		return "LoadedNull"
	}
	return "NotLoaded"
}

// Value is the result of Record.Lookup.
type Value struct {
	V     any
	State State
}

// Record is one row of a model. Loaded rows keep the raw values of the
// last fetch and decode a column on first access; assigned values are
// kept apart until the record is saved.
type Record struct {
	model *Model
	db    *DB
	isNew bool

	index  map[string]int // shared between records of the same fetch
	values []any
	local  map[string]any
	cache  map[string]any

	rels     map[string]*Record   // loaded to-one relations; nil values are absent rows
	pending  map[string]*Record   // assigned belongs-to targets not yet saved
	children map[string][]*Record // assigned has-many records

	key   *vorm.IdentityKey
	items map[string]any
	errs  Errors
}

func newLoaded(db *DB, m *Model, index map[string]int, values []any) *Record {
	return &Record{model: m, db: db, index: index, values: values, errs: Errors{model: m.name}}
}

// Model returns the model of the record.
func (r *Record) Model() *Model { return r.model }

// DB returns the database the record was fetched from or created on.
func (r *Record) DB() *DB { return r.db }

// IsNew reports whether the record was never inserted.
func (r *Record) IsNew() bool { return r.isNew }

func (r *Record) String() string {
	pk, err := r.PrimaryKey()
	if err != nil || r.isNew {
		return r.model.name + "(new)"
	}
	return fmt.Sprintf("%s%v", r.model.name, pk)
}

// loaded returns the raw value of a fetched column.
func (r *Record) loaded(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

// Get returns the value of a column: the assigned value if any, otherwise
// the decoded value of the last fetch. A column left out of the SELECT
// list of a fetched record gives a *vorm.ColumnNotLoadedError. Names that
// are not columns read selected expressions and items.
//
//	total, err := order.Get("total")
func (r *Record) Get(name string) (any, error) {
	if v, ok := r.local[name]; ok {
		return v, nil
	}
	c, ok := r.model.Column(name)
	if !ok {
		if v, ok := r.loaded(name); ok {
			return v, nil
		}
		if v, ok := r.items[name]; ok {
			return v, nil
		}
		return nil, vorm.NewQueryBuildError(vorm.UnknownColumn, r.model.name+"."+name)
	}
	if v, ok := r.cache[name]; ok {
		return v, nil
	}
	if c.BelongsTo != "" {
		if t, ok := r.pending[c.As]; ok {
			return t.pkValue()
		}
	}
	raw, ok := r.loaded(name)
	if !ok {
		if r.isNew {
			return nil, nil
		}
		return nil, vorm.NewColumnNotLoadedError(name)
	}
	v, err := c.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("orm: %s.%s: %w", r.model.name, name, err)
	}
	if r.cache == nil {
		r.cache = make(map[string]any)
	}
	r.cache[name] = v
	return v, nil
}

// MustGet is like Get but panics on error.
func (r *Record) MustGet(name string) any {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Lookup is like Get but reports a column that is not loaded, or loaded
// as NULL, through the State of the result instead of an error.
func (r *Record) Lookup(name string) (Value, error) {
	v, err := r.Get(name)
	switch {
	case vorm.IsColumnNotLoaded(err):
		return Value{}, nil
	case err != nil:
		return Value{}, err
	case v != nil:
		return Value{V: v, State: Loaded}, nil
	}
	if _, ok := r.local[name]; !ok && r.isNew {
		if _, ok := r.loaded(name); !ok {
			return Value{}, nil
		}
	}
	return Value{State: LoadedNull}, nil
}

// Col implements Ref. Errors are carried into the predicate using the
// value and reported when the query is built.
func (r *Record) Col(name string) any {
	v, err := r.Get(name)
	if err != nil {
		return badRef{err: err}
	}
	return v
}

// Set assigns a column. The assignment is written by the next Insert or
// Update. Assigning a belongs-to column drops a loaded relation that no
// longer matches.
func (r *Record) Set(name string, v any) error {
	c, ok := r.model.Column(name)
	if !ok {
		return vorm.NewQueryBuildError(vorm.UnknownColumn, r.model.name+"."+name)
	}
	if r.local == nil {
		r.local = make(map[string]any)
	}
	r.local[name] = v
	delete(r.cache, name)
	if c.BelongsTo != "" {
		delete(r.pending, c.As)
		if t, ok := r.rels[c.As]; ok {
			if t == nil || !r.pointsTo(t, v) {
				delete(r.rels, c.As)
			}
		}
	}
	return nil
}

func (r *Record) pointsTo(t *Record, v any) bool {
	pk, err := t.pkValue()
	if err != nil || pk == nil {
		return false
	}
	c, _ := t.model.Column(t.model.pk[0])
	d, err := c.Decode(v)
	return err == nil && sameValue(pk, d)
}

// SetAll assigns several columns.
func (r *Record) SetAll(vs map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(vs)) {
		if err := r.Set(k, vs[k]); err != nil {
			return err
		}
	}
	return nil
}

// PrimaryKey returns the primary key values of the record.
func (r *Record) PrimaryKey() ([]any, error) {
	if len(r.model.pk) == 0 {
		return nil, &vorm.NoPrimaryKeyError{Model: r.model.name}
	}
	vs := make([]any, len(r.model.pk))
	for i, k := range r.model.pk {
		v, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// pkValue returns the single primary key value of the record.
func (r *Record) pkValue() (any, error) {
	k, err := r.model.singlePK()
	if err != nil {
		return nil, err
	}
	return r.Get(k)
}

// changed reports whether the assigned value of a column differs from its
// loaded value.
func (r *Record) changed(name string) bool {
	v, ok := r.local[name]
	if !ok {
		return false
	}
	raw, ok := r.loaded(name)
	if r.isNew || !ok {
		return true
	}
	c, _ := r.model.Column(name)
	a, err := c.Decode(v)
	if err != nil {
		return true
	}
	b, err := c.Decode(raw)
	if err != nil {
		return true
	}
	return !sameValue(a, b)
}

// Changes returns the assigned values that differ from the loaded ones,
// including belongs-to columns of assigned targets that were saved since.
func (r *Record) Changes() map[string]any {
	ch := make(map[string]any)
	for k, v := range r.local {
		if r.changed(k) {
			ch[k] = v
		}
	}
	for _, c := range r.model.belongsTo() {
		t, ok := r.pending[c.As]
		if !ok {
			continue
		}
		if _, ok := ch[c.Name]; ok {
			continue
		}
		if pk, err := t.pkValue(); err == nil && pk != nil {
			if raw, ok := r.loaded(c.Name); r.isNew || !ok || !r.pointsTo(t, raw) {
				ch[c.Name] = pk
			}
		}
	}
	return ch
}

// IsChanged reports whether any of cols, or any column when cols is
// empty, has a pending change.
func (r *Record) IsChanged(cols ...string) bool {
	ch := r.Changes()
	if len(cols) == 0 {
		return len(ch) > 0
	}
	for _, c := range cols {
		if _, ok := ch[c]; ok {
			return true
		}
	}
	return false
}

// Errors returns the validation errors of the last Validate, Insert or
// Update.
func (r *Record) Errors() *Errors { return &r.errs }

// Item returns a non-column value attached to the record, or a selected
// expression of the last fetch.
func (r *Record) Item(name string) (any, bool) {
	if v, ok := r.items[name]; ok {
		return v, true
	}
	if _, ok := r.model.Column(name); ok {
		return nil, false
	}
	return r.loaded(name)
}

// SetItem attaches a non-column value to the record.
func (r *Record) SetItem(name string, v any) {
	if r.items == nil {
		r.items = make(map[string]any)
	}
	r.items[name] = v
}

func (r *Record) relation(name string) (*Relation, error) {
	rel, ok := r.model.Relation(name)
	if !ok {
		return nil, vorm.NewQueryBuildError(vorm.UnknownRelation, r.model.name+"."+name)
	}
	return rel, nil
}

func (r *Record) setRel(name string, t *Record) {
	if r.rels == nil {
		r.rels = make(map[string]*Record)
	}
	r.rels[name] = t
}

// Related returns the record of a belongs-to or has-one relation, or nil
// when there is none. The result is kept on the record; records wired by
// a join are returned without a query.
//
//	order, err := item.Related(ctx, "order")
func (r *Record) Related(ctx context.Context, name string) (*Record, error) {
	rel, err := r.relation(name)
	if err != nil {
		return nil, err
	}
	if rel.kind == KindHasMany {
		return nil, vorm.NewArgumentError("Related", "%s is a has-many relation, use Children", rel)
	}
	if t, ok := r.pending[name]; ok {
		return t, nil
	}
	if t, ok := r.rels[name]; ok {
		return t, nil
	}
	if r.db == nil {
		return nil, vorm.ErrNoDB
	}
	if err := rel.resolve(); err != nil {
		return nil, err
	}
	var t *Record
	root := rel.root()
	switch {
	case rel.kind == KindBelongsTo || root.fk != "":
		col := root.fk
		if rel.kind == KindBelongsTo {
			col = rel.column.Name
		}
		v, err := r.Get(col)
		if err != nil {
			return nil, err
		}
		if v != nil {
			t, err = r.db.lookup(ctx, rel.Target(), v)
			if err != nil {
				return nil, err
			}
		}
	default:
		t, err = rel.Query(r).Bind(r.db).Peek(ctx)
		if err != nil {
			return nil, err
		}
	}
	r.setRel(name, t)
	return t, nil
}

// Children returns the query of the records of a has-many relation. Its
// result cache is enabled unless the relation was declared NoCache.
// Records assigned with SetRelated are returned as the cached result.
func (r *Record) Children(name string) (*Query, error) {
	rel, err := r.relation(name)
	if err != nil {
		return nil, err
	}
	if rel.kind != KindHasMany {
		return nil, vorm.NewArgumentError("Children", "%s is not a has-many relation", rel)
	}
	q := rel.Query(r).Bind(r.db)
	if err := q.Err(); err != nil {
		return nil, err
	}
	if cs, ok := r.children[name]; ok {
		q.rows, q.cstate = slices.Clone(cs), cacheFilled
		return q, nil
	}
	return q.Cache(!rel.root().noCache), nil
}

// SetRelated assigns the record of a belongs-to or has-one relation, or
// the records ([]*Record) of a has-many relation. A belongs-to target
// sets the column; has-one and has-many targets get their belongs-to
// column pointing back to r.
func (r *Record) SetRelated(name string, v any) error {
	rel, err := r.relation(name)
	if err != nil {
		return err
	}
	if err := rel.resolve(); err != nil {
		return err
	}
	target := rel.Target()
	check := func(t *Record) error {
		if t != nil && t.model != target {
			return vorm.NewArgumentError("SetRelated", "%s expects a %s record, got %s", rel, target.name, t.model.name)
		}
		return nil
	}
	reverse := rel.root().reverse
	switch rel.kind {
	case KindBelongsTo:
		t, ok := v.(*Record)
		if !ok && v != nil {
			return vorm.NewArgumentError("SetRelated", "%s expects *Record, got %T", rel, v)
		}
		if err := check(t); err != nil {
			return err
		}
		col := rel.column.Name
		if t == nil {
			if err := r.Set(col, nil); err != nil {
				return err
			}
			r.setRel(name, nil)
			return nil
		}
		pk, err := t.pkValue()
		if err != nil {
			return err
		}
		if pk == nil {
			delete(r.local, col)
			delete(r.cache, col)
			delete(r.rels, name)
			if r.pending == nil {
				r.pending = make(map[string]*Record)
			}
			r.pending[name] = t
			return nil
		}
		if err := r.Set(col, pk); err != nil {
			return err
		}
		r.setRel(name, t)
	case KindHasOne:
		t, ok := v.(*Record)
		if !ok && v != nil {
			return vorm.NewArgumentError("SetRelated", "%s expects *Record, got %T", rel, v)
		}
		if err := check(t); err != nil {
			return err
		}
		if t != nil && reverse != "" {
			if err := t.SetRelated(reverse, r); err != nil {
				return err
			}
		}
		r.setRel(name, t)
	case KindHasMany:
		ts, ok := v.([]*Record)
		if !ok && v != nil {
			return vorm.NewArgumentError("SetRelated", "%s expects []*Record, got %T", rel, v)
		}
		for _, t := range ts {
			if err := check(t); err != nil {
				return err
			}
			if reverse != "" {
				if err := t.SetRelated(reverse, r); err != nil {
					return err
				}
			}
		}
		if r.children == nil {
			r.children = make(map[string][]*Record)
		}
		r.children[name] = slices.Clone(ts)
	}
	return nil
}
