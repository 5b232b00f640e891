package orm

import (
	"fmt"
	"slices"

	"github.com/syssam/vorm"
)

// span is the range of result columns holding one table of a row.
type span struct {
	model    *Model
	i1, i2   int
	index    map[string]int
	npk      int  // leading primary key columns
	identity bool // records go through the identity cache
}

// wire links two records of a row: rs[dst] becomes attribute key of rs[src].
type wire struct {
	src, dst int
	key      string
	reverse  bool
}

// materializer turns result rows into records.
type materializer struct {
	db    *DB
	spans []span
	wires []wire
	seen  []map[vorm.IdentityKey]*Record
	multi bool

	skipNull bool // rows with a NULL leading column have no record
}

func isBorder(c string) bool { return c == "|" || c == "'|'" }

// leadingPK returns the number of primary key columns cols starts with,
// or 0 when they do not start with the full key.
func leadingPK(m *Model, cols []string) int {
	if len(m.pk) == 0 || len(cols) < len(m.pk) {
		return 0
	}
	for i, k := range m.pk {
		if cols[i] != k {
			return 0
		}
	}
	return len(m.pk)
}

func newMaterializer(q *Query, cols []string, peek bool) (*materializer, error) {
	db := q.db
	useIdentity := db.identity != nil && !q.noIdentity
	mt := &materializer{db: db}
	if len(q.selects) <= 1 {
		// A single block may select a joined table only.
		m, covers := q.model, true
		if len(q.selects) == 1 {
			m, covers = q.selects[0].model, q.selects[0].covers()
		}
		s := span{model: m, i1: 0, i2: len(cols), index: sharedIndex(cols)}
		s.npk = leadingPK(m, cols)
		s.identity = useIdentity && s.npk > 0 && covers
		mt.spans = []span{s}
		mt.skipNull = m != q.model
		return mt, nil
	}
	mt.multi = true
	i1 := 0
	for _, b := range q.selects {
		w := b.width()
		i2 := i1 + w
		if w < 0 {
			i2 = len(cols)
			for i := i1; i < len(cols); i++ {
				if isBorder(cols[i]) {
					i2 = i
					break
				}
			}
		}
		if i2 > len(cols) || i1 >= i2 {
			return nil, fmt.Errorf("orm: %s: result has %d columns, select list expects more", b.alias, len(cols))
		}
		hs := cols[i1:i2]
		s := span{model: b.model, i1: i1, i2: i2, index: sharedIndex(hs)}
		s.npk = leadingPK(b.model, hs)
		s.identity = useIdentity && s.npk > 0 && b.covers()
		mt.spans = append(mt.spans, s)
		if w < 0 {
			i1 = i2 + 1
		} else {
			i1 = i2
		}
	}
	mt.seen = make([]map[vorm.IdentityKey]*Record, len(mt.spans))
	for i := 1; i < len(mt.spans) && !peek; i++ {
		if mt.spans[i].npk > 0 {
			mt.seen[i] = make(map[vorm.IdentityKey]*Record)
		}
	}
	for ri, b := range q.selects {
		j := q.joinOf(b.alias)
		if ri == 0 || j == nil || j.source == "" {
			continue
		}
		si := slices.IndexFunc(q.selects, func(x *selBlock) bool { return x.alias == j.source })
		if si < 0 {
			continue
		}
		if j.key != "" {
			mt.wires = append(mt.wires, wire{src: si, dst: ri, key: j.key})
		}
		if j.reverse != "" {
			mt.wires = append(mt.wires, wire{src: ri, dst: si, key: j.reverse, reverse: true})
		}
	}
	return mt, nil
}

// row materializes one result row. It returns nil when the primary table
// of the row is absent.
func (mt *materializer) row(vs []any) (*Record, error) {
	if !mt.multi {
		return mt.record(0, vs)
	}
	rs := make([]*Record, len(mt.spans))
	for i := range mt.spans {
		r, err := mt.record(i, vs)
		if err != nil {
			return nil, err
		}
		rs[i] = r
	}
	for _, w := range mt.wires {
		src, dst := rs[w.src], rs[w.dst]
		switch {
		case src == nil:
		case w.reverse && dst == nil:
		default:
			src.setRel(w.key, dst)
		}
	}
	return rs[0], nil
}

func (mt *materializer) record(i int, row []any) (*Record, error) {
	s := &mt.spans[i]
	vs := slices.Clip(row[s.i1:s.i2])
	if (mt.multi || mt.skipNull) && vs[0] == nil {
		return nil, nil
	}
	var seen map[vorm.IdentityKey]*Record
	if mt.seen != nil {
		seen = mt.seen[i]
	}
	if !s.identity && seen == nil {
		return newLoaded(mt.db, s.model, s.index, vs), nil
	}
	key, err := identityKey(s.model, vs[:s.npk])
	if err != nil {
		return nil, err
	}
	if r, ok := seen[key]; ok {
		return r, nil
	}
	if s.identity {
		if v, ok := mt.db.identity.Get(key); ok {
			if r, ok := v.(*Record); ok {
				if seen != nil {
					seen[key] = r
				}
				return r, nil
			}
		}
	}
	r := newLoaded(mt.db, s.model, s.index, vs)
	if s.identity {
		r.key = &key
		mt.db.identity.Put(key, r)
	}
	if seen != nil {
		seen[key] = r
	}
	return r, nil
}
