package orm

import (
	"regexp"
	"strconv"

	"github.com/syssam/vorm"
)

var reAlias = regexp.MustCompile(`^[A-Za-z_][0-9A-Za-z_]*$`)

func validAlias(s string) bool { return reAlias.MatchString(s) }

// join is one JOIN clause. source is the alias of the table the join was
// made from; key is the attribute of the source record set to the joined
// record, and reverse the attribute of the joined record set to the source
// record, when rows are materialized.
type join struct {
	kind    string
	alias   string
	model   *Model
	on      SQL
	source  string
	key     string
	reverse string
}

type joinConfig struct {
	alias    string
	hasAlias bool
	from     string
	hasFrom  bool
	key      string
	hasKey   bool
}

// JoinOption configures a join.
type JoinOption func(*joinConfig)

// As sets the alias of the joined table. By default the joined model's
// alias is used if free, otherwise the first free name of t2, t3, ...
func As(alias string) JoinOption {
	return func(c *joinConfig) { c.alias, c.hasAlias = alias, true }
}

// From names the table the relation is looked up on. By default every
// table of the query is searched.
func From(alias string) JoinOption {
	return func(c *joinConfig) { c.from, c.hasFrom = alias, true }
}

// Key names the attribute of the source record set to the joined record
// during materialization. It defaults to the relation name for belongs-to
// and has-one relations.
func Key(name string) JoinOption {
	return func(c *joinConfig) { c.key, c.hasKey = name, true }
}

// Join adds an inner join on a relation, given by name or as a *Relation.
//
//	db.Query(items).Join("order")
//	db.Query(orders).Join(lastItem, orm.As("li"))
func (q *Query) Join(rel any, opts ...JoinOption) *Query {
	return q.joinRel("JOIN", rel, opts)
}

// LeftJoin is like Join with a LEFT JOIN.
func (q *Query) LeftJoin(rel any, opts ...JoinOption) *Query {
	return q.joinRel("LEFT JOIN", rel, opts)
}

// JoinModel adds an inner join of m with an explicit ON predicate. Use
// From and Key to have materialized rows wired to the source record.
func (q *Query) JoinModel(m *Model, on SQL, opts ...JoinOption) *Query {
	return q.joinModel("JOIN", m, on, opts)
}

// LeftJoinModel is like JoinModel with a LEFT JOIN.
func (q *Query) LeftJoinModel(m *Model, on SQL, opts ...JoinOption) *Query {
	return q.joinModel("LEFT JOIN", m, on, opts)
}

func joinOptions(opts []JoinOption) *joinConfig {
	c := &joinConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (q *Query) joinRel(kind string, x any, opts []JoinOption) *Query {
	if q.err != nil {
		return q
	}
	cfg := joinOptions(opts)
	var (
		src tableRef
		rel *Relation
		err error
	)
	switch x := x.(type) {
	case string:
		src, rel, err = q.findRelation(cfg, x, nil)
	case *Relation:
		src, _, err = q.findRelation(cfg, x.name, x.Owner())
		rel = x
	default:
		err = vorm.NewArgumentError("Join", "relation must be a name or *Relation, got %T", x)
	}
	if err != nil {
		return q.fail(err)
	}
	if err := rel.resolve(); err != nil {
		return q.fail(err)
	}
	target := rel.Target()
	alias, err := q.joinAlias(cfg, target)
	if err != nil {
		return q.fail(err)
	}
	on, err := rel.QueryAs(Alias(src.model, src.alias), alias).WhereSQLVerbose()
	if err != nil {
		return q.fail(err)
	}
	key := rel.joinKey()
	if cfg.hasKey {
		key = cfg.key
	}
	return q.addJoin(&join{
		kind:    kind,
		alias:   alias,
		model:   target,
		on:      on,
		source:  src.alias,
		key:     key,
		reverse: rel.root().reverse,
	})
}

func (q *Query) joinModel(kind string, m *Model, on SQL, opts []JoinOption) *Query {
	if q.err != nil {
		return q
	}
	if m == nil {
		return q.fail(vorm.NewArgumentError("JoinModel", "nil model"))
	}
	cfg := joinOptions(opts)
	j := &join{kind: kind, model: m, on: on, key: cfg.key}
	if cfg.hasFrom || cfg.hasKey {
		j.source = q.alias
		if cfg.hasFrom {
			t, err := q.table(cfg.from)
			if err != nil {
				return q.fail(err)
			}
			j.source = t.alias
		}
	}
	alias, err := q.joinAlias(cfg, m)
	if err != nil {
		return q.fail(err)
	}
	j.alias = alias
	return q.addJoin(j)
}

func (q *Query) addJoin(j *join) *Query {
	c := q.clone()
	c.joins = append(c.joins[:len(c.joins):len(c.joins)], j)
	return c
}

// findRelation locates the single table of the query declaring relation
// name. A non-nil owner restricts the search to tables of that model.
func (q *Query) findRelation(cfg *joinConfig, name string, owner *Model) (tableRef, *Relation, error) {
	ts := q.tables()
	if cfg.hasFrom {
		t, err := q.table(cfg.from)
		if err != nil {
			return tableRef{}, nil, err
		}
		ts = []tableRef{t}
	}
	var found []tableRef
	for _, t := range ts {
		if owner != nil && t.model != owner {
			continue
		}
		if _, ok := t.model.Relation(name); ok {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return tableRef{}, nil, vorm.NewQueryBuildError(vorm.UnknownRelation, name)
	case 1:
	default:
		return tableRef{}, nil, vorm.NewQueryBuildError(vorm.AmbiguousRelation, name)
	}
	t := found[0]
	if t.alias == "" {
		return tableRef{}, nil, vorm.NewQueryBuildError(vorm.NoTableAlias, t.model.name)
	}
	rel, _ := t.model.Relation(name)
	return t, rel, nil
}

func (q *Query) joinAlias(cfg *joinConfig, m *Model) (string, error) {
	switch {
	case !cfg.hasAlias:
		return q.nextAlias(m), nil
	case q.hasAlias(cfg.alias):
		return "", vorm.NewQueryBuildError(vorm.DuplicateAlias, cfg.alias)
	case cfg.alias == "":
		return "", vorm.NewQueryBuildError(vorm.NoTableAlias, m.name)
	case !validAlias(cfg.alias):
		return "", vorm.NewQueryBuildError(vorm.InvalidAlias, cfg.alias)
	}
	return cfg.alias, nil
}

// nextAlias returns the default alias of m if it is free, otherwise the
// highest free name of t1 .. t<joins+2>.
func (q *Query) nextAlias(m *Model) string {
	if m != nil && m.alias != "" && !q.hasAlias(m.alias) {
		return m.alias
	}
	for i := len(q.joins) + 2; i > 0; i-- {
		if t := "t" + strconv.Itoa(i); !q.hasAlias(t) {
			return t
		}
	}
	return ""
}

// joinOf returns the join aliased alias, or nil for the primary table.
func (q *Query) joinOf(alias string) *join {
	for _, j := range q.joins {
		if j.alias == alias {
			return j
		}
	}
	return nil
}
