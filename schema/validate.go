package schema

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the first error, or nil.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(table, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

// ValidateOption configures schema validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	reserved map[string]map[string]bool
}

// Reserved rejects columns of table named after the given names, such as
// the relation names of its model.
func Reserved(table string, names ...string) ValidateOption {
	return func(c *validateConfig) {
		m := c.reserved[table]
		if m == nil {
			m = make(map[string]bool)
			c.reserved[table] = m
		}
		for _, n := range names {
			m[n] = true
		}
	}
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{reserved: make(map[string]map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}

	// Check for primary key
	if len(t.PrimaryKey) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "table has no primary key",
		})
	}

	// Check for duplicate column names
	colNames := make(map[string]bool)
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Err != nil {
			result.errorf(t.Name, c.Name, "%v", c.Err)
		}
		if colNames[c.Name] {
			result.errorf(t.Name, c.Name, "duplicate column name")
		}
		if cfg.reserved[t.Name][c.Name] {
			result.errorf(t.Name, c.Name, "name is reserved")
		}
		colNames[c.Name] = true
		names = append(names, c.Name)
	}

	for _, k := range t.PrimaryKey {
		c, ok := t.Column(k)
		switch {
		case !ok:
			result.errorf(t.Name, k, "primary key references non-existent column")
		case c.Nullable:
			result.errorf(t.Name, k, "primary key column must be NOT NULL")
		}
	}
	if n := len(t.PrimaryKey); n > 0 && (len(names) < n || !slices.Equal(names[:n], t.PrimaryKey)) {
		result.errorf(t.Name, "", "columns must start with the primary key")
	}
	if ds := t.DefaultSelect; len(ds) > 0 && ds[0] != "*" {
		n := len(t.PrimaryKey)
		if len(ds) < n || !slices.Equal(ds[:n], t.PrimaryKey) {
			result.errorf(t.Name, "", "default select must start with the primary key")
		}
		for _, k := range ds {
			if !colNames[k] {
				result.errorf(t.Name, k, "default select references non-existent column")
			}
		}
	}

	// Check for duplicate index names
	idxNames := make(map[string]bool)
	for _, idx := range t.Indexes {
		name := idx.NameOn(t.Name)
		if idxNames[name] {
			result.errorf(t.Name, "", "duplicate index name: %s", name)
		}
		idxNames[name] = true

		// Check that index columns exist
		for _, col := range idx.Columns {
			if !colNames[col] {
				result.errorf(t.Name, "", "index %q references non-existent column %q", name, col)
			}
		}
	}

	// Check foreign keys
	for _, fk := range t.ForeignKeys {
		if !colNames[fk.Column] {
			result.errorf(t.Name, "", "foreign key references non-existent column %q", fk.Column)
		}
	}

	return result
}

// ValidateSchema validates all tables in a schema.
func ValidateSchema(tables []*Table, opts ...ValidateOption) *ValidationResult {
	result := &ValidationResult{}

	tableNames := make(map[string]bool)
	for _, t := range tables {
		// Check for duplicate table names
		if tableNames[t.Name] {
			result.errorf(t.Name, "", "duplicate table name")
		}
		tableNames[t.Name] = true

		// Validate individual table
		tableResult := ValidateTable(t, opts...)
		result.Errors = append(result.Errors, tableResult.Errors...)
		result.Warnings = append(result.Warnings, tableResult.Warnings...)
	}

	// Validate foreign key references
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if !tableNames[fk.RefTable] {
				result.errorf(t.Name, "", "foreign key references non-existent table %q", fk.RefTable)
			}
		}
	}

	return result
}
