package schema

import (
	"fmt"
	"strings"
)

// Type is the storage type of a column.
type Type uint8

// Column types.
const (
	TypeInvalid Type = iota
	TypeInt
	TypeBigInt
	TypeString
	TypeText
	TypeBool
	TypeFloat
	TypeTime
	TypeBytes
	TypeUUID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeInt:     "int",
	TypeBigInt:  "bigint",
	TypeString:  "string",
	TypeText:    "text",
	TypeBool:    "bool",
	TypeFloat:   "float",
	TypeTime:    "time",
	TypeBytes:   "bytes",
	TypeUUID:    "uuid",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Numeric reports whether the type is an integer type.
func (t Type) Numeric() bool { return t == TypeInt || t == TypeBigInt }

// Descriptor holds the declaration of a column as consumed by the orm
// package. Descriptors are built once at startup and never mutated.
type Descriptor struct {
	Name          string
	Type          Type
	Size          int  // VARCHAR length; 0 means the default
	Nullable      bool // NULL allowed
	Primary       bool // member of the primary key
	AutoIncrement bool
	Unique        bool
	Index         *bool  // nil: default for the column kind
	Default       any    // static default applied to new records
	DefaultFunc   func() any
	BelongsTo     string // target model name
	As            string // relation name of a belongs-to column
	NoForeignKey  bool
	Decoder       func(any) (any, error)
	Encoder       func(any) (any, error)
	Err           error
}

// Column is a column builder.
type Column struct {
	desc *Descriptor
}

func newColumn(name string, t Type) *Column {
	d := &Descriptor{Name: name, Type: t}
	if !validName(name) {
		d.Err = fmt.Errorf("schema: invalid column name %q", name)
	}
	return &Column{desc: d}
}

// Int returns a new INT column.
func Int(name string) *Column { return newColumn(name, TypeInt) }

// BigInt returns a new BIGINT column.
func BigInt(name string) *Column { return newColumn(name, TypeBigInt) }

// String returns a new VARCHAR column.
func String(name string) *Column { return newColumn(name, TypeString) }

// Text returns a new TEXT column.
func Text(name string) *Column { return newColumn(name, TypeText) }

// Bool returns a new BOOLEAN column.
func Bool(name string) *Column { return newColumn(name, TypeBool) }

// Float returns a new floating point column.
func Float(name string) *Column { return newColumn(name, TypeFloat) }

// Time returns a new timestamp column.
func Time(name string) *Column { return newColumn(name, TypeTime) }

// Bytes returns a new binary column.
func Bytes(name string) *Column { return newColumn(name, TypeBytes) }

// UUID returns a new UUID column. Values decode to uuid.UUID.
func UUID(name string) *Column { return newColumn(name, TypeUUID) }

// BelongsTo returns an INT column referencing the primary key of the
// target model. The column gets an index and, in DDL, a foreign key.
//
//	schema.BelongsTo("order_id", "Order")
//	schema.BelongsTo("created_by", "User") // relation "creator"
func BelongsTo(name, target string) *Column {
	c := newColumn(name, TypeInt)
	c.desc.BelongsTo = target
	return c
}

// Primary marks the column as (part of) the primary key.
func (c *Column) Primary() *Column {
	c.desc.Primary = true
	return c
}

// AutoIncrement marks an integer primary key column as generated by the
// database.
func (c *Column) AutoIncrement() *Column {
	if !c.desc.Type.Numeric() && c.desc.Err == nil {
		c.desc.Err = fmt.Errorf("schema: %s: AUTO_INCREMENT requires an integer column", c.desc.Name)
	}
	c.desc.AutoIncrement = true
	return c
}

// Null allows NULL values in the column.
func (c *Column) Null() *Column {
	c.desc.Nullable = true
	return c
}

// Unique adds a UNIQUE index on the column.
func (c *Column) Unique() *Column {
	c.desc.Unique = true
	return c
}

// Index adds (or with false, suppresses) a single column index.
func (c *Column) Index(on bool) *Column {
	c.desc.Index = &on
	return c
}

// Default sets the value new records get for the column.
func (c *Column) Default(v any) *Column {
	c.desc.Default = v
	return c
}

// DefaultFunc sets a function computing the value of new records.
func (c *Column) DefaultFunc(fn func() any) *Column {
	c.desc.DefaultFunc = fn
	return c
}

// Size sets the VARCHAR length.
func (c *Column) Size(n int) *Column {
	if n <= 0 && c.desc.Err == nil {
		c.desc.Err = fmt.Errorf("schema: %s: size must be positive", c.desc.Name)
	}
	c.desc.Size = n
	return c
}

// As names the relation created for a belongs-to column.
func (c *Column) As(name string) *Column {
	c.desc.As = name
	return c
}

// NoForeignKey omits the FOREIGN KEY clause of a belongs-to column.
func (c *Column) NoForeignKey() *Column {
	c.desc.NoForeignKey = true
	return c
}

// Decoder replaces the default conversion from driver values.
func (c *Column) Decoder(fn func(any) (any, error)) *Column {
	c.desc.Decoder = fn
	return c
}

// Encoder replaces the default conversion to driver values.
func (c *Column) Encoder(fn func(any) (any, error)) *Column {
	c.desc.Encoder = fn
	return c
}

// Descriptor returns the column descriptor.
func (c *Column) Descriptor() *Descriptor {
	if c.desc.As == "" && c.desc.BelongsTo != "" {
		c.desc.As = RelationName(c.desc.Name)
	}
	return c.desc
}

// RelationName returns the default relation name of a belongs-to column:
// the column name without its "_id" suffix, with created_by and
// updated_by mapped to creator and updater.
func RelationName(column string) string {
	switch column {
	case "created_by":
		return "creator"
	case "updated_by":
		return "updater"
	}
	return strings.TrimSuffix(column, "_id")
}

// Indexed reports whether the column asks for a single column index. A
// belongs-to column is indexed unless Index(false) was given.
func (d *Descriptor) Indexed() bool {
	if d.Index != nil {
		return *d.Index
	}
	return d.BelongsTo != ""
}

// DefaultValue returns the default of the column, if any.
func (d *Descriptor) DefaultValue() (any, bool) {
	switch {
	case d.DefaultFunc != nil:
		return d.DefaultFunc(), true
	case d.Default != nil:
		return d.Default, true
	}
	return nil, false
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
