package vorm

import "strings"

// IdentityCache maps primary keys of materialized rows to the in-memory
// record built for them, so that a lookup of the same (table, key) pair
// within one unit of work yields the same instance.
//
// Implementations are not required to be safe for concurrent use. A cache
// is scoped to one unit of work (a request or a transaction) and is
// cleared at transaction boundaries.
type IdentityCache interface {
	// Get returns the record cached for key.
	Get(key IdentityKey) (any, bool)

	// Put caches the record for key, replacing any previous entry.
	Put(key IdentityKey, record any)

	// Delete removes the entry for key, if any.
	Delete(key IdentityKey)

	// Clear removes all entries.
	Clear()

	// Len returns the number of cached entries.
	Len() int
}

// IdentityKey identifies one row of one table. ID holds the canonical
// encoding of the primary key values.
type IdentityKey struct {
	Table string
	ID    string
}

// String returns the string representation of the identity key.
func (k IdentityKey) String() string {
	return k.Table + ":" + strings.ReplaceAll(k.ID, "\x00", ",")
}
