package schema

import "strings"

// Index describes a database index.
type Index struct {
	Name    string // defaults to <table>_<columns>
	Columns []string
	Unique  bool
}

// IndexOn returns an index on the given columns.
//
//	schema.IndexOn("status", "created_at")
func IndexOn(columns ...string) *Index {
	return &Index{Columns: columns}
}

// UniqueIndexOn returns a UNIQUE index on the given columns.
func UniqueIndexOn(columns ...string) *Index {
	return &Index{Columns: columns, Unique: true}
}

// Named sets the storage name of the index.
func (i *Index) Named(name string) *Index {
	i.Name = name
	return i
}

// NameOn returns the name of the index when created on table.
func (i *Index) NameOn(table string) string {
	if i.Name != "" {
		return i.Name
	}
	return table + "_" + strings.Join(i.Columns, "_")
}

// Indexes returns the declared indexes followed by the single column
// indexes implied by column declarations: a UNIQUE index per unique
// column and a plain index per indexed column that does not already lead
// the primary key or another index.
func Indexes(pk []string, columns []*Descriptor, declared []*Index) []*Index {
	xs := append([]*Index(nil), declared...)
	leading := make(map[string]bool)
	if len(pk) > 0 {
		leading[pk[0]] = true
	}
	for _, i := range declared {
		if len(i.Columns) > 0 {
			leading[i.Columns[0]] = true
		}
	}
	for _, c := range columns {
		if c.Index != nil && !*c.Index {
			continue
		}
		switch {
		case c.Unique:
			xs = append(xs, UniqueIndexOn(c.Name))
		case c.Indexed() && !leading[c.Name]:
			xs = append(xs, IndexOn(c.Name))
		default:
			continue
		}
		leading[c.Name] = true
	}
	return xs
}

// UniqueSets returns the column sets whose values must be unique: every
// unique index and every unique column.
func UniqueSets(t *Table) [][]string {
	var sets [][]string
	seen := make(map[string]bool)
	add := func(cols []string) {
		k := strings.Join(cols, "\x00")
		if !seen[k] {
			seen[k] = true
			sets = append(sets, cols)
		}
	}
	for _, i := range t.Indexes {
		if i.Unique {
			add(i.Columns)
		}
	}
	for _, c := range t.Columns {
		if c.Unique {
			add([]string{c.Name})
		}
	}
	return sets
}
