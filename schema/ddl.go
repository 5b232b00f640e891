package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/vorm/dialect"
)

// Table is the storage description of a model, as validated and
// rendered into DDL.
type Table struct {
	Name          string
	Columns       []*Descriptor
	PrimaryKey    []string
	DefaultSelect []string
	Indexes       []*Index
	ForeignKeys   []*ForeignKey
}

// ForeignKey references the primary key of another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Column returns the descriptor of the named column.
func (t *Table) Column(name string) (*Descriptor, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// SQLType returns the column type as written in CREATE TABLE.
func (d *Descriptor) SQLType(name string) string {
	serial := d.AutoIncrement && d.Primary
	switch d.Type {
	case TypeInt:
		switch {
		case name == dialect.Postgres && serial:
			return "SERIAL"
		case name == dialect.MySQL:
			return "INT"
		}
		return "INTEGER"
	case TypeBigInt:
		switch {
		case name == dialect.Postgres && serial:
			return "BIGSERIAL"
		case name == dialect.SQLite && serial:
			// Only INTEGER PRIMARY KEY aliases the rowid.
			return "INTEGER"
		}
		return "BIGINT"
	case TypeString:
		size := d.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case TypeText:
		return "TEXT"
	case TypeBool:
		return "BOOLEAN"
	case TypeFloat:
		switch name {
		case dialect.Postgres:
			return "DOUBLE PRECISION"
		case dialect.SQLite:
			return "REAL"
		}
		return "DOUBLE"
	case TypeTime:
		if name == dialect.Postgres {
			return "TIMESTAMP"
		}
		return "DATETIME"
	case TypeBytes:
		if name == dialect.Postgres {
			return "BYTEA"
		}
		return "BLOB"
	case TypeUUID:
		if name == dialect.Postgres {
			return "UUID"
		}
		return "CHAR(36)"
	}
	return d.Type.String()
}

// DDL returns the column definition used inside CREATE TABLE. single
// reports whether the column is the only primary key column.
func (d *Descriptor) DDL(name string, single bool) string {
	ss := []string{d.Name, d.SQLType(name)}
	serial := name == dialect.Postgres && d.AutoIncrement && d.Primary
	if !d.Nullable && !serial {
		ss = append(ss, "NOT NULL")
	}
	if d.Primary && single {
		ss = append(ss, "PRIMARY KEY")
	}
	if d.AutoIncrement && name == dialect.MySQL {
		ss = append(ss, "AUTO_INCREMENT")
	}
	return strings.Join(ss, " ")
}

// CreateTableSQL renders the CREATE TABLE statement of t.
func CreateTableSQL(name string, t *Table) string {
	single := len(t.PrimaryKey) == 1
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		defs = append(defs, c.DDL(name, single))
	}
	if len(t.PrimaryKey) > 1 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", fk.Column, fk.RefTable, fk.RefColumn))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", t.Name, strings.Join(defs, ",\n  "))
}

// CreateIndexSQL renders the CREATE INDEX statement of idx on table.
func CreateIndexSQL(table string, idx *Index) string {
	kw := "INDEX"
	if idx.Unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kw, idx.NameOn(table), table, strings.Join(idx.Columns, ", "))
}

// DDL returns the CREATE TABLE statement of t followed by one CREATE
// INDEX statement per index.
func DDL(name string, t *Table) []string {
	ss := []string{CreateTableSQL(name, t)}
	for _, idx := range t.Indexes {
		ss = append(ss, CreateIndexSQL(t.Name, idx))
	}
	return ss
}
