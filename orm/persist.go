package orm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/dialect/sql"
)

// New returns a new record of m with column defaults applied, followed by
// the assignments sets.
//
//	item, err := db.New(items, orm.Set("order_id", 1), orm.Set("qty", 2))
func (db *DB) New(m *Model, sets ...Assign) (*Record, error) {
	r := &Record{model: m, db: db, isNew: true, errs: Errors{model: m.name}}
	for _, c := range m.columns {
		if v, ok := c.DefaultValue(); ok {
			if err := r.Set(c.Name, v); err != nil {
				return nil, err
			}
		}
	}
	for _, s := range sets {
		if err := r.Set(s.col, s.v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Find returns the record of m with the given primary key, or a
// *vorm.RecordNotFoundError.
func (db *DB) Find(ctx context.Context, m *Model, pk ...any) (*Record, error) {
	if len(m.pk) == 0 {
		return nil, &vorm.NoPrimaryKeyError{Model: m.name}
	}
	if len(pk) != len(m.pk) {
		return nil, vorm.NewArgumentError("Find", "%s has %d primary key columns, got %d values", m.name, len(m.pk), len(pk))
	}
	conds := make([]Cond, len(pk))
	for i, k := range m.pk {
		switch pk[i].(type) {
		case SQL, Operator:
			return nil, vorm.NewArgumentError("Find", "%s: primary key value must not be SQL", k)
		}
		conds[i] = Eq(k, pk[i])
	}
	r, err := db.FindBy(ctx, m, conds...)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, vorm.NewRecordNotFoundError(m.table, pk...)
	}
	return r, nil
}

// FindBy returns the first record of m matching conds, or nil. A lookup
// of the full primary key is answered from the identity cache when the
// record was already materialized, and a NULL key value matches nothing.
func (db *DB) FindBy(ctx context.Context, m *Model, conds ...Cond) (*Record, error) {
	if len(conds) == 0 {
		return nil, vorm.NewArgumentError("FindBy", "no conditions")
	}
	exprs := make([]Expr, len(conds))
	for i, c := range conds {
		exprs[i] = c
	}
	key, ok := db.pkLookup(m, conds)
	if !ok {
		return db.Query(m).Where(exprs...).First(ctx)
	}
	if key == nil {
		return nil, nil
	}
	if db.identity != nil {
		if v, hit := db.identity.Get(*key); hit {
			if r, ok := v.(*Record); ok {
				return r, nil
			}
		}
	}
	return db.Query(m).Where(exprs...).Peek(ctx)
}

// pkLookup tells whether conds name exactly the primary key of m with
// plain values, and returns their identity key. A NULL key value gives a
// nil key: no row can match.
func (db *DB) pkLookup(m *Model, conds []Cond) (*vorm.IdentityKey, bool) {
	if len(m.pk) == 0 || len(conds) != len(m.pk) {
		return nil, false
	}
	vs := make([]any, len(m.pk))
	for i, k := range m.pk {
		j := slices.IndexFunc(conds, func(c Cond) bool { return c.col == k })
		if j < 0 {
			return nil, false
		}
		switch v := conds[j].v.(type) {
		case SQL, Operator, badRef:
			return nil, false
		case nil:
			return nil, true
		default:
			vs[i] = v
		}
	}
	key, err := identityKey(m, vs)
	if err != nil {
		return nil, false
	}
	return &key, true
}

// lookup finds the record of a single-column primary key, or nil.
func (db *DB) lookup(ctx context.Context, m *Model, pk any) (*Record, error) {
	k, err := m.singlePK()
	if err != nil {
		return nil, err
	}
	return db.FindBy(ctx, m, Eq(k, pk))
}

// Outcome is the result of Record.Update and Record.Save.
type Outcome uint8

// Update outcomes.
const (
	NoChanges Outcome = iota
	Updated
	NotMatched
	Conflict
	Inserted
)

func (o Outcome) String() string {
	switch o {
	case NoChanges:
		return "NoChanges"
	case Updated:
		return "Updated"
	case NotMatched:
		return "NotMatched"
	case Conflict:
		return "Conflict"
	case Inserted:
		return "Inserted"
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

type updateConfig struct {
	force     bool
	lock      *bool
	timestamp *bool
	by        any
}

// UpdateOption configures Record.Update.
type UpdateOption func(*updateConfig)

// Force runs the UPDATE even when no column was assigned, which stamps
// updated_at and bumps lock_version.
func Force() UpdateOption {
	return func(c *updateConfig) { c.force = true }
}

// Lock controls optimistic locking. By default a loaded lock_version is
// checked and incremented; Lock(true) also increments it when it was not
// loaded, and Lock(false) leaves it alone.
func Lock(on bool) UpdateOption {
	return func(c *updateConfig) { c.lock = &on }
}

// Timestamp controls the updated_at stamp. By default updated_at is set
// to the current time unless it already holds it; Timestamp(true) always
// sets it and Timestamp(false) never does.
func Timestamp(on bool) UpdateOption {
	return func(c *updateConfig) { c.timestamp = &on }
}

// By sets updated_by to v, a key value or a *Record.
func By(v any) UpdateOption {
	return func(c *updateConfig) { c.by = v }
}

// encodeAll encodes assigned values for the driver.
func (r *Record) encodeAll(txn map[string]any) error {
	for k, v := range txn {
		if _, ok := v.(SQL); ok {
			continue
		}
		c, _ := r.model.Column(k)
		ev, err := c.Encode(v)
		if err != nil {
			return fmt.Errorf("orm: %s.%s: %w", r.model.name, k, err)
		}
		txn[k] = ev
	}
	return nil
}

// orderedColumns returns the keys of txn in column order.
func (r *Record) orderedColumns(txn map[string]any) []string {
	ks := make([]string, 0, len(txn))
	for _, c := range r.model.columns {
		if _, ok := txn[c.Name]; ok {
			ks = append(ks, c.Name)
		}
	}
	return ks
}

// Insert writes a new record. An auto-increment primary key is read back
// from the driver. A unique constraint violation is reported as a
// "taken" failure in a *vorm.ValidationError.
func (r *Record) Insert(ctx context.Context) error {
	if !r.isNew {
		return vorm.NewArgumentError("Insert", "%s is already saved", r)
	}
	if r.db == nil {
		return vorm.ErrNoDB
	}
	m, db := r.model, r.db
	txn := r.Changes()
	if err := r.encodeAll(txn); err != nil {
		return err
	}
	cols := r.orderedColumns(txn)
	args := make([]any, len(cols))
	for i, k := range cols {
		args[i] = txn[k]
	}
	stmt := m.insertDefaults(db.dialect)
	if len(cols) > 0 {
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", m.table, strings.Join(cols, ", "), placeholders(len(cols)))
	}
	ai := m.autoIncrement
	_, assigned := txn[ai]
	var err error
	switch {
	case ai == "" || assigned:
		_, err = db.exec(ctx, stmt, args)
	case db.dialect == dialect.Postgres:
		var row []any
		row, err = db.QueryRow(ctx, stmt+" RETURNING "+ai, args...)
		if err == nil && len(row) > 0 {
			txn[ai] = row[0]
		}
	default:
		var res sql.Result
		if res, err = db.exec(ctx, stmt, args); err == nil {
			var id int64
			if id, err = res.LastInsertId(); err == nil {
				txn[ai] = id
			}
		}
	}
	if err != nil {
		if sql.IsUniqueConstraintError(err) {
			r.errs.Add("", CodeTaken)
			return vorm.NewAggregateError(r.errs.Err(), vorm.NewConstraintError("unique", err))
		}
		return vorm.NewMutationError(m.table, "insert", err)
	}
	r.afterInsert(txn)
	return nil
}

func (r *Record) afterInsert(txn map[string]any) {
	cols := r.orderedColumns(txn)
	vs := make([]any, len(cols))
	for i, k := range cols {
		vs[i] = txn[k]
		delete(r.local, k)
	}
	r.index, r.values = sharedIndex(cols), vs
	r.isNew = false
	r.cache = nil
	clear(r.pending)
	if db := r.db; db.identity != nil && !r.model.hasNilPK(txn) {
		pk, err := r.PrimaryKey()
		if err == nil {
			if key, err := identityKey(r.model, pk); err == nil {
				r.key = &key
				db.identity.Put(key, r)
			}
		}
	}
}

func (m *Model) hasNilPK(txn map[string]any) bool {
	if len(m.pk) == 0 {
		return true
	}
	for _, k := range m.pk {
		if txn[k] == nil {
			return true
		}
	}
	return false
}

// wherePK returns the primary key conditions of a loaded record, using
// the values of the last fetch.
func (r *Record) wherePK() ([]Expr, error) {
	if len(r.model.pk) == 0 {
		return nil, &vorm.NoPrimaryKeyError{Model: r.model.name}
	}
	conds := make([]Expr, len(r.model.pk))
	for i, k := range r.model.pk {
		raw, ok := r.loaded(k)
		if !ok {
			return nil, vorm.NewColumnNotLoadedError(k)
		}
		conds[i] = Eq(k, raw)
	}
	return conds, nil
}

// Update writes the pending changes of a loaded record and reports what
// happened. A lock conflict, or no row matching a checked lock_version,
// gives Conflict with a conflict failure in Errors.
//
//	out, err := order.Update(ctx, orm.By(user))
func (r *Record) Update(ctx context.Context, opts ...UpdateOption) (Outcome, error) {
	if r.isNew {
		return NoChanges, vorm.NewArgumentError("Update", "%s is not saved", r)
	}
	if r.db == nil {
		return NoChanges, vorm.ErrNoDB
	}
	cfg := &updateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	m := r.model
	txn := r.Changes()
	if len(txn) == 0 && !cfg.force {
		return NoChanges, nil
	}
	w, err := r.wherePK()
	if err != nil {
		return NoChanges, err
	}
	var (
		sets    []Assign
		checked bool
	)
	if _, ok := m.Column(LockVersion); ok && (cfg.lock == nil || *cfg.lock) {
		raw, loaded := r.loaded(LockVersion)
		switch {
		case r.changed(LockVersion):
			r.errs.Add("", CodeConflict)
			return Conflict, nil
		case loaded:
			c, _ := m.Column(LockVersion)
			v, err := c.Decode(raw)
			if err != nil {
				return NoChanges, err
			}
			n, _ := v.(int64)
			w = append(w, Eq(LockVersion, raw))
			txn[LockVersion] = (n + 1) % 100
			checked = true
		case cfg.lock != nil:
			sets = append(sets, Set(LockVersion, Raw("("+LockVersion+" + 1) % 100")))
		}
	}
	if c, ok := m.Column(UpdatedAt); ok && (cfg.timestamp == nil || *cfg.timestamp) {
		if _, ok := txn[UpdatedAt]; !ok {
			now := r.db.now()
			if cfg.timestamp != nil || !r.holds(c.Name, now) {
				txn[UpdatedAt] = now
			}
		}
	}
	if cfg.by != nil {
		if _, ok := m.Column(UpdatedBy); ok {
			if _, ok := txn[UpdatedBy]; !ok {
				v := cfg.by
				if t, ok := v.(*Record); ok {
					if v, err = t.pkValue(); err != nil {
						return NoChanges, err
					}
				}
				if !r.holds(UpdatedBy, v) {
					txn[UpdatedBy] = v
				}
			}
		}
	}
	if len(txn) == 0 && len(sets) == 0 {
		return NoChanges, nil
	}
	if err := r.encodeAll(txn); err != nil {
		return NoChanges, err
	}
	for _, k := range r.orderedColumns(txn) {
		sets = append(sets, Set(k, txn[k]))
	}
	n, err := r.db.QueryAs(m, "").Where(w...).Update(sets...).Exec(ctx)
	if err != nil {
		return NoChanges, err
	}
	if n == 0 {
		if checked {
			r.errs.Add("", CodeConflict)
			return Conflict, nil
		}
		return NotMatched, nil
	}
	r.afterUpdate(txn)
	return Updated, nil
}

// holds reports whether the loaded value of col equals v.
func (r *Record) holds(col string, v any) bool {
	raw, ok := r.loaded(col)
	if !ok {
		return false
	}
	c, _ := r.model.Column(col)
	a, err := c.Decode(raw)
	if err != nil {
		return false
	}
	b, err := c.Decode(v)
	return err == nil && sameValue(a, b)
}

// afterUpdate merges the written values into the loaded ones and re-keys
// the identity cache when the primary key changed.
func (r *Record) afterUpdate(txn map[string]any) {
	names := make([]string, len(r.values))
	for k, i := range r.index {
		if i < len(names) {
			names[i] = k
		}
	}
	vs := slices.Clone(r.values)
	grown := false
	for _, k := range r.orderedColumns(txn) {
		if i, ok := r.index[k]; ok && i < len(vs) {
			vs[i] = txn[k]
			continue
		}
		names = append(names, k)
		vs = append(vs, txn[k])
		grown = true
	}
	if grown {
		r.index = sharedIndex(names)
	}
	r.values = vs
	for k := range txn {
		delete(r.local, k)
		delete(r.cache, k)
	}
	for _, c := range r.model.belongsTo() {
		if _, ok := txn[c.Name]; ok {
			delete(r.pending, c.As)
		}
	}
	if r.key == nil || r.db.identity == nil {
		return
	}
	moved := slices.ContainsFunc(r.model.pk, func(k string) bool {
		_, ok := txn[k]
		return ok
	})
	if !moved {
		return
	}
	fc := r.db.identity
	if v, ok := fc.Get(*r.key); ok && v == r {
		fc.Delete(*r.key)
		pk, err := r.PrimaryKey()
		if err != nil {
			r.key = nil
			return
		}
		key, err := identityKey(r.model, pk)
		if err != nil {
			r.key = nil
			return
		}
		r.key = &key
		fc.Put(key, r)
	}
}

// Delete removes the row of a loaded record and evicts it from the
// identity cache. It reports whether a row was deleted.
func (r *Record) Delete(ctx context.Context) (bool, error) {
	if r.isNew {
		return false, vorm.NewArgumentError("Delete", "%s is not saved", r)
	}
	if r.db == nil {
		return false, vorm.ErrNoDB
	}
	w, err := r.wherePK()
	if err != nil {
		return false, err
	}
	n, err := r.db.QueryAs(r.model, "").Where(w...).Delete().Exec(ctx)
	if err != nil {
		return false, err
	}
	if r.key != nil && r.db.identity != nil {
		if v, ok := r.db.identity.Get(*r.key); ok && v == r {
			r.db.identity.Delete(*r.key)
		}
		r.key = nil
	}
	return n > 0, nil
}

// Save inserts a new record or updates a loaded one.
func (r *Record) Save(ctx context.Context, opts ...UpdateOption) (Outcome, error) {
	if r.isNew {
		if err := r.Insert(ctx); err != nil {
			return NoChanges, err
		}
		return Inserted, nil
	}
	return r.Update(ctx, opts...)
}
