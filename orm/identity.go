package orm

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"

	"github.com/syssam/vorm"
)

// NewIdentityMap returns an identity cache. A size of zero gives an
// unbounded map; a positive size keeps the most recently used entries.
func NewIdentityMap(size int) vorm.IdentityCache {
	if size <= 0 {
		return make(identityMap)
	}
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &lruIdentityMap{c: c}
}

type identityMap map[vorm.IdentityKey]any

func (m identityMap) Get(k vorm.IdentityKey) (any, bool) {
	v, ok := m[k]
	return v, ok
}

func (m identityMap) Put(k vorm.IdentityKey, v any) { m[k] = v }
func (m identityMap) Delete(k vorm.IdentityKey)     { delete(m, k) }
func (m identityMap) Clear()                        { clear(m) }
func (m identityMap) Len() int                      { return len(m) }

type lruIdentityMap struct {
	c *lru.Cache
}

func (m *lruIdentityMap) Get(k vorm.IdentityKey) (any, bool) { return m.c.Get(k) }
func (m *lruIdentityMap) Put(k vorm.IdentityKey, v any)      { m.c.Add(k, v) }
func (m *lruIdentityMap) Delete(k vorm.IdentityKey)          { m.c.Remove(k) }
func (m *lruIdentityMap) Clear()                             { m.c.Purge() }
func (m *lruIdentityMap) Len() int                           { return m.c.Len() }

// identityKey builds the cache key of a row of m from its primary key
// values, raw or decoded.
func identityKey(m *Model, pk []any) (vorm.IdentityKey, error) {
	ss := make([]string, len(pk))
	for i, v := range pk {
		c, _ := m.Column(m.pk[i])
		d, err := c.Decode(v)
		if err != nil {
			return vorm.IdentityKey{}, err
		}
		ss[i] = canonical(d)
	}
	return vorm.IdentityKey{Table: m.table, ID: strings.Join(ss, "\x00")}, nil
}

// canonical encodes a decoded key value so that equal keys read through
// different drivers map to the same string.
func canonical(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	}
	return fmt.Sprint(v)
}

// sameValue compares two values for change detection and fragment
// equality.
func sameValue(a, b any) bool {
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

var sharedIndexes = mustLRU(256)

func mustLRU(size int) *lru.Cache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return c
}

// sharedIndex returns the column name to position map of a result column
// list. Maps are interned so records of the same shape share one.
func sharedIndex(cols []string) map[string]int {
	k := strings.Join(cols, "\x00")
	if v, ok := sharedIndexes.Get(k); ok {
		return v.(map[string]int)
	}
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	sharedIndexes.Add(k, idx)
	return idx
}
