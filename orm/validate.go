package orm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/syssam/vorm"
	"github.com/syssam/vorm/schema"
)

// Code identifies a validation failure.
type Code string

// Validation codes.
const (
	CodeBlank       Code = "blank"
	CodeConflict    Code = "conflict"
	CodeNotSelected Code = "not_selected"
	CodeTaken       Code = "taken"
	CodeTooLong     Code = "too_long"
)

var messages = map[Code]string{
	CodeBlank:       "can't be blank",
	CodeConflict:    "saving failed due to another update",
	CodeNotSelected: "is not selected",
	CodeTaken:       "has already been taken",
	CodeTooLong:     "is too long (maximum is %d < %d characters)",
}

var titleCaser = cases.Title(language.English)

// Label returns the human readable name of a column: "order_id" gives
// "Order", "created_at" gives "Created At".
func Label(field string) string {
	s := strings.TrimSuffix(field, "_id")
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// FieldError is one validation failure. An empty Field applies to the
// whole record.
type FieldError struct {
	Field string
	Code  Code
	Args  []any
}

// Message returns the message of the failure without its label.
func (e *FieldError) Message() string {
	m, ok := messages[e.Code]
	if !ok {
		return string(e.Code)
	}
	if len(e.Args) > 0 {
		return fmt.Sprintf(m, e.Args...)
	}
	return m
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message()
	}
	return Label(e.Field) + " " + e.Message()
}

// Errors collects the validation failures of a record. A failure is added
// once per field.
type Errors struct {
	model  string
	fields []*FieldError
}

// Add records a failure.
func (es *Errors) Add(field string, code Code, args ...any) {
	for _, e := range es.fields {
		if e.Field == field && e.Code == code {
			return
		}
	}
	es.fields = append(es.fields, &FieldError{Field: field, Code: code, Args: args})
}

// Len returns the number of failures.
func (es *Errors) Len() int { return len(es.fields) }

// All returns the failures in the order they were added.
func (es *Errors) All() []*FieldError { return slices.Clone(es.fields) }

// On returns the failures of field.
func (es *Errors) On(field string) []*FieldError {
	var fs []*FieldError
	for _, e := range es.fields {
		if e.Field == field {
			fs = append(fs, e)
		}
	}
	return fs
}

// Has reports whether field failed with code.
func (es *Errors) Has(field string, code Code) bool {
	return slices.ContainsFunc(es.fields, func(e *FieldError) bool {
		return e.Field == field && e.Code == code
	})
}

// Clear removes every failure.
func (es *Errors) Clear() { es.fields = nil }

// Err returns nil when there is no failure, and a *vorm.ValidationError
// joining them otherwise.
func (es *Errors) Err() error {
	if len(es.fields) == 0 {
		return nil
	}
	errs := make([]error, len(es.fields))
	for i, e := range es.fields {
		errs[i] = e
	}
	return vorm.NewValidationError(es.model, errors.Join(errs...))
}

// blank reports whether v is NULL or an empty string.
func blank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}
	return false
}

// Validate checks the record before it is saved and returns the failures
// as a *vorm.ValidationError, or nil. A record whose lock_version was
// assigned fails with a conflict. Assigned columns, and the NOT NULL
// columns of a new record, are checked for blank values and length.
// Finally, unique column sets with a pending change are checked against
// the database in a single query.
func (r *Record) Validate(ctx context.Context) error {
	es := &r.errs
	es.model = r.model.name
	es.Clear()
	if _, ok := r.model.Column(LockVersion); ok && !r.isNew && r.IsChanged(LockVersion) {
		es.Add("", CodeConflict)
		return es.Err()
	}
	for _, c := range r.model.columns {
		_, assigned := r.local[c.Name]
		switch {
		case assigned:
		case !r.isNew || c.Nullable || c.AutoIncrement:
			continue
		case c.BelongsTo != "" && r.pending[c.As] != nil:
			continue
		}
		v, err := r.Get(c.Name)
		if err != nil {
			return err
		}
		r.validateColumn(c, v)
	}
	if es.Len() == 0 {
		if err := r.validateUniqueness(ctx); err != nil {
			return err
		}
	}
	return es.Err()
}

func (r *Record) validateColumn(c *schema.Descriptor, v any) {
	es := &r.errs
	if blank(v) {
		switch {
		case c.Nullable:
		case c.BelongsTo != "":
			es.Add(c.Name, CodeNotSelected)
		default:
			es.Add(c.Name, CodeBlank)
		}
		return
	}
	if c.Type == schema.TypeString {
		size := c.Size
		if size == 0 {
			size = 255
		}
		if s, ok := v.(string); ok {
			if n := utf8.RuneCountInString(norm.NFC.String(s)); n > size {
				es.Add(c.Name, CodeTooLong, size, n)
			}
		}
	}
}

// validateUniqueness runs one "SELECT EXISTS (...), ..." over the unique
// sets with a pending change and no NULL member.
func (r *Record) validateUniqueness(ctx context.Context) error {
	if r.db == nil || len(r.model.uniqueSets) == 0 {
		return nil
	}
	var (
		sets  [][]string
		parts []string
		args  []any
	)
	for _, set := range r.model.uniqueSets {
		if !r.IsChanged(set...) {
			continue
		}
		conds := make([]Expr, 0, len(set))
		ok := true
		for _, k := range set {
			v, err := r.Get(k)
			if err != nil {
				return err
			}
			if v == nil {
				ok = false
				break
			}
			c, _ := r.model.Column(k)
			if v, err = c.Encode(v); err != nil {
				return err
			}
			conds = append(conds, Eq(k, v))
		}
		if !ok {
			continue
		}
		s, err := r.db.Query(r.model).Where(conds...).ExistsSQL()
		if err != nil {
			return err
		}
		sets = append(sets, set)
		parts = append(parts, s.text)
		args = append(args, s.args...)
	}
	if len(sets) == 0 {
		return nil
	}
	row, err := r.db.QueryRow(ctx, "SELECT "+strings.Join(parts, ",\n"), args...)
	if err != nil {
		return vorm.NewQueryError(r.model.table, "exists", err)
	}
	flag := &schema.Descriptor{Name: "exists", Type: schema.TypeBool}
	for i, set := range sets {
		if i >= len(row) {
			break
		}
		taken, err := flag.Decode(row[i])
		if err != nil {
			return err
		}
		if taken == true {
			r.errs.Add(set[len(set)-1], CodeTaken)
		}
	}
	return nil
}
