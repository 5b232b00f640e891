package orm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/dialect"
	"github.com/syssam/vorm/schema"
)

// Well-known column names handled by persistence.
const (
	LockVersion = "lock_version"
	UpdatedAt   = "updated_at"
	UpdatedBy   = "updated_by"
)

// Model is the immutable description of a table: its columns, primary
// key, relations and paging defaults. Models are declared on a Registry.
type Model struct {
	reg           *Registry
	name          string
	table         string
	alias         string
	columns       []*schema.Descriptor
	colIdx        map[string]int
	pk            []string
	defaultSelect []string
	perPage       int
	maxPerPage    int
	relations     map[string]*Relation
	relOrder      []*Relation
	declared      []*schema.Index
	indexes       []*schema.Index
	foreignKeys   []*schema.ForeignKey
	belongings    map[*Model][]*schema.Descriptor
	autoIncrement string
	uniqueSets    [][]string
	err           error
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// Table sets the table name. The default is the underscored plural of
// the model name.
func Table(name string) ModelOption {
	return func(m *Model) { m.table = name }
}

// TableAlias sets the default table alias (t1).
func TableAlias(alias string) ModelOption {
	return func(m *Model) {
		if !validAlias(alias) {
			m.fail(vorm.NewQueryBuildError(vorm.InvalidAlias, alias))
		}
		m.alias = alias
	}
}

// Columns declares the columns of the model, in storage order.
func Columns(cols ...*schema.Column) ModelOption {
	return func(m *Model) {
		for _, c := range cols {
			d := c.Descriptor()
			if _, ok := m.colIdx[d.Name]; ok {
				m.fail(fmt.Errorf("orm: %s: duplicate column %q", m.name, d.Name))
				continue
			}
			m.colIdx[d.Name] = len(m.columns)
			m.columns = append(m.columns, d)
		}
	}
}

// PrimaryKey sets the primary key columns. The default is the columns
// declared Primary.
func PrimaryKey(cols ...string) ModelOption {
	return func(m *Model) { m.pk = cols }
}

// DefaultSelect sets the columns selected when a query names none.
func DefaultSelect(cols ...string) ModelOption {
	return func(m *Model) { m.defaultSelect = cols }
}

// PerPage sets the default page size (25).
func PerPage(n int) ModelOption {
	return func(m *Model) { m.perPage = n }
}

// MaxPerPage sets the largest page size accepted by Page (1000).
func MaxPerPage(n int) ModelOption {
	return func(m *Model) { m.maxPerPage = n }
}

// Relations declares has-many and has-one relations of the model.
func Relations(rels ...*Relation) ModelOption {
	return func(m *Model) {
		for _, r := range rels {
			m.addRelation(r)
		}
	}
}

// Indexes declares multi-column indexes of the model.
func Indexes(idx ...*schema.Index) ModelOption {
	return func(m *Model) { m.declared = append(m.declared, idx...) }
}

func (m *Model) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

func (m *Model) addRelation(r *Relation) {
	if _, ok := m.relations[r.name]; ok {
		m.fail(fmt.Errorf("orm: %s: duplicate relation %q", m.name, r.name))
		return
	}
	r.owner = m
	m.relations[r.name] = r
	m.relOrder = append(m.relOrder, r)
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// String implements fmt.Stringer.
func (m *Model) String() string { return m.name }

// Table returns the table name.
func (m *Model) Table() string { return m.table }

// Alias returns the default table alias.
func (m *Model) Alias() string { return m.alias }

// Columns returns the column descriptors in storage order.
func (m *Model) Columns() []*schema.Descriptor { return slices.Clone(m.columns) }

// Column returns the descriptor of the named column.
func (m *Model) Column(name string) (*schema.Descriptor, bool) {
	i, ok := m.colIdx[name]
	if !ok {
		return nil, false
	}
	return m.columns[i], true
}

// PrimaryKey returns the primary key columns.
func (m *Model) PrimaryKey() []string { return slices.Clone(m.pk) }

// DefaultSelect returns the columns selected when a query names none.
func (m *Model) DefaultSelect() []string { return slices.Clone(m.defaultSelect) }

// PerPage returns the default page size.
func (m *Model) PerPage() int { return m.perPage }

// MaxPerPage returns the largest accepted page size.
func (m *Model) MaxPerPage() int { return m.maxPerPage }

// Relation returns the named relation.
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// Relations returns the relations of the model in declaration order,
// belongs-to relations first.
func (m *Model) Relations() []*Relation { return slices.Clone(m.relOrder) }

// Indexes returns the declared and implied indexes of the model.
func (m *Model) Indexes() []*schema.Index { return slices.Clone(m.indexes) }

// Query returns a query over the model not bound to a database. It can
// be compiled but not executed.
func (m *Model) Query() *Query { return newQuery(nil, m, m.alias) }

// As returns an unbound query over the model with the given alias. An
// empty alias compiles to bare column names.
func (m *Model) As(alias string) *Query { return newQuery(nil, m, alias) }

// SchemaTable returns the storage description of the model.
func (m *Model) SchemaTable() *schema.Table {
	return &schema.Table{
		Name:          m.table,
		Columns:       m.columns,
		PrimaryKey:    m.pk,
		DefaultSelect: m.defaultSelect,
		Indexes:       m.indexes,
		ForeignKeys:   m.foreignKeys,
	}
}

// CreateTableSQL renders the CREATE TABLE statement of the model.
func (m *Model) CreateTableSQL(name string) string {
	return schema.CreateTableSQL(name, m.SchemaTable())
}

// CreateIndexSQLs renders one CREATE INDEX statement per index.
func (m *Model) CreateIndexSQLs() []string {
	ss := make([]string, len(m.indexes))
	for i, idx := range m.indexes {
		ss[i] = schema.CreateIndexSQL(m.table, idx)
	}
	return ss
}

// DDL renders the CREATE TABLE and CREATE INDEX statements of the model.
func (m *Model) DDL(name string) []string {
	return schema.DDL(name, m.SchemaTable())
}

// belongsTo returns the belongs-to columns of the model.
func (m *Model) belongsTo() []*schema.Descriptor {
	var cs []*schema.Descriptor
	for _, c := range m.columns {
		if c.BelongsTo != "" {
			cs = append(cs, c)
		}
	}
	return cs
}

func (m *Model) singlePK() (string, error) {
	if len(m.pk) != 1 {
		return "", &vorm.NoPrimaryKeyError{Model: m.name}
	}
	return m.pk[0], nil
}

// Registry holds the models of an application. Models are declared with
// Define, then Seal resolves references between them. A sealed registry
// is read-only and safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
	order  []*Model
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Define declares a model. It panics when called after Seal.
//
//	reg.Define("LineItem", orm.Columns(
//	    schema.Int("id").Primary().AutoIncrement(),
//	    schema.BelongsTo("order_id", "Order"),
//	))
func (r *Registry) Define(name string, opts ...ModelOption) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("orm: Define(%q) after Seal", name))
	}
	m := &Model{
		reg:           r,
		name:          name,
		table:         inflect.Underscore(inflect.Pluralize(name)),
		alias:         "t1",
		colIdx:        make(map[string]int),
		defaultSelect: []string{"*"},
		perPage:       25,
		maxPerPage:    1000,
		relations:     make(map[string]*Relation),
		belongings:    make(map[*Model][]*schema.Descriptor),
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, ok := r.models[name]; ok {
		m.fail(fmt.Errorf("orm: duplicate model %q", name))
	} else {
		r.models[name] = m
		r.order = append(r.order, m)
	}
	return m
}

// Model returns the named model.
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// MustModel is like Model but panics if the model is not declared.
func (r *Registry) MustModel(name string) *Model {
	m, ok := r.Model(name)
	if !ok {
		panic(fmt.Sprintf("orm: unknown model %q", name))
	}
	return m
}

// Models returns the models in declaration order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Seal resolves belongs-to targets and relation targets, derives
// indexes and validates every model. Seal is idempotent.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	for _, m := range r.order {
		if m.err != nil {
			return m.err
		}
		if m.pk == nil {
			for _, c := range m.columns {
				if c.Primary {
					m.pk = append(m.pk, c.Name)
				}
			}
		}
	}
	for _, m := range r.order {
		if err := r.link(m); err != nil {
			return err
		}
	}
	tables := make([]*schema.Table, 0, len(r.order))
	var opts []schema.ValidateOption
	for _, m := range r.order {
		m.indexes = schema.Indexes(m.pk, m.columns, m.declared)
		t := m.SchemaTable()
		m.uniqueSets = schema.UniqueSets(t)
		if len(m.pk) == 1 {
			if c, _ := m.Column(m.pk[0]); c != nil && c.AutoIncrement {
				m.autoIncrement = c.Name
			}
		}
		names := make([]string, 0, len(m.relOrder))
		for _, rel := range m.relOrder {
			names = append(names, rel.name)
		}
		opts = append(opts, schema.Reserved(m.table, names...))
		tables = append(tables, t)
	}
	if err := schema.ValidateSchema(tables, opts...).Err(); err != nil {
		return fmt.Errorf("orm: %w", err)
	}
	r.sealed = true
	return nil
}

// link resolves the belongs-to columns and relation targets of m.
func (r *Registry) link(m *Model) error {
	var b2s []*Relation
	for _, c := range m.columns {
		if c.BelongsTo == "" {
			continue
		}
		target, ok := r.models[c.BelongsTo]
		if !ok {
			return fmt.Errorf("orm: %s.%s: unknown model %q", m.name, c.Name, c.BelongsTo)
		}
		pk, err := target.singlePK()
		if err != nil {
			return fmt.Errorf("orm: %s.%s: %w", m.name, c.Name, err)
		}
		target.belongings[m] = append(target.belongings[m], c)
		if !c.NoForeignKey {
			m.foreignKeys = append(m.foreignKeys, &schema.ForeignKey{Column: c.Name, RefTable: target.table, RefColumn: pk})
		}
		rel := newBelongsTo(c, target)
		rel.owner = m
		b2s = append(b2s, rel)
	}
	for _, rel := range m.relOrder {
		target, ok := r.models[rel.target]
		if !ok {
			return fmt.Errorf("orm: %s.%s: unknown model %q", m.name, rel.name, rel.target)
		}
		rel.model = target
	}
	for _, rel := range b2s {
		if _, ok := m.relations[rel.name]; ok {
			return fmt.Errorf("orm: %s: duplicate relation %q", m.name, rel.name)
		}
		m.relations[rel.name] = rel
	}
	m.relOrder = append(b2s, m.relOrder...)
	return nil
}

// Dialect-aware empty INSERT.
func (m *Model) insertDefaults(name string) string {
	if name == dialect.MySQL {
		return "INSERT INTO " + m.table + " () VALUES ()"
	}
	return "INSERT INTO " + m.table + " DEFAULT VALUES"
}
