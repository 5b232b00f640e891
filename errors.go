package vorm

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a primary-key lookup finds no row.
	ErrNotFound = errors.New("vorm: record not found")

	// ErrInvalidQuery is matched by every error produced while building a
	// query: unknown or ambiguous names, bad aliases, bad arguments.
	ErrInvalidQuery = errors.New("vorm: invalid query")

	// ErrNoPage is returned when pagination values are requested from a
	// query that was never paged.
	ErrNoPage = errors.New("vorm: page() not called")

	// ErrUncached is returned when a query whose result cache is disabled
	// is asked for its length, an element by index, or its truthiness.
	ErrUncached = errors.New("vorm: evaluation of an uncached query")

	// ErrNoDB is returned when a query that is not bound to a database is
	// executed.
	ErrNoDB = errors.New("vorm: query is not bound to a database")

	// ErrTxDone is returned when a finished transaction scope is used again.
	ErrTxDone = errors.New("vorm: transaction scope already ended")
)

// RecordNotFoundError represents a primary-key lookup that found no row.
type RecordNotFoundError struct {
	table string
	key   []any
}

// Error returns the error string.
func (e *RecordNotFoundError) Error() string {
	if len(e.key) == 0 {
		return fmt.Sprintf("vorm: %s not found", e.table)
	}
	ks := make([]string, len(e.key))
	for i, k := range e.key {
		ks[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("vorm: %s not found (key=%s)", e.table, strings.Join(ks, ", "))
}

// Is reports whether the target error matches RecordNotFoundError.
// This allows errors.Is(err, ErrNotFound) to return true.
func (e *RecordNotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table that was searched.
func (e *RecordNotFoundError) Table() string {
	return e.table
}

// Key returns the primary key values that were searched for.
func (e *RecordNotFoundError) Key() []any {
	return e.key
}

// NewRecordNotFoundError returns a new RecordNotFoundError.
func NewRecordNotFoundError(table string, key ...any) *RecordNotFoundError {
	return &RecordNotFoundError{table: table, key: key}
}

// IsNotFound returns true if the error is a RecordNotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *RecordNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ColumnNotLoadedError is returned by strict column access on a record
// whose last fetch did not select the column. It is distinct from a
// column that was loaded as NULL.
type ColumnNotLoadedError struct {
	Column string
}

// Error returns the error string.
func (e *ColumnNotLoadedError) Error() string {
	return fmt.Sprintf("vorm: column %q was not loaded", e.Column)
}

// NewColumnNotLoadedError returns a new ColumnNotLoadedError.
func NewColumnNotLoadedError(column string) *ColumnNotLoadedError {
	return &ColumnNotLoadedError{Column: column}
}

// IsColumnNotLoaded returns true if the error is a ColumnNotLoadedError.
func IsColumnNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *ColumnNotLoadedError
	return errors.As(err, &e)
}

// QueryBuildError describes a structural mistake in a query description.
// The Kind distinguishes the failures callers may want to tell apart.
type QueryBuildError struct {
	Kind BuildErrorKind
	Name string // column, relation, alias or operation involved
	Msg  string // optional detail
}

// BuildErrorKind enumerates QueryBuildError kinds.
type BuildErrorKind int

// Query build error kinds.
const (
	UnknownColumn BuildErrorKind = iota + 1
	AmbiguousColumn
	UnknownRelation
	AmbiguousRelation
	UnreachableTable
	NoTableAlias
	DuplicateAlias
	InvalidAlias
	NullableFirstColumn
	BadArgument
)

// Error returns the error string.
func (e *QueryBuildError) Error() string {
	var s string
	switch e.Kind {
	case UnknownColumn:
		s = fmt.Sprintf("unknown column: %s", e.Name)
	case AmbiguousColumn:
		s = fmt.Sprintf("column %s is ambiguous", e.Name)
	case UnknownRelation:
		s = fmt.Sprintf("unknown relation: %s", e.Name)
	case AmbiguousRelation:
		s = fmt.Sprintf("relation %s is ambiguous", e.Name)
	case UnreachableTable:
		s = fmt.Sprintf("%s is unreachable", e.Name)
	case NoTableAlias:
		s = fmt.Sprintf("no table alias for %s", e.Name)
	case DuplicateAlias:
		s = fmt.Sprintf("not unique table alias: %s", e.Name)
	case InvalidAlias:
		s = fmt.Sprintf("invalid table alias: %s", e.Name)
	case NullableFirstColumn:
		s = fmt.Sprintf("%s: first column must be NOT NULL", e.Name)
	default:
		s = e.Name
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return "vorm: " + s
}

// Is reports whether the target error matches ErrInvalidQuery.
func (e *QueryBuildError) Is(err error) bool {
	return err == ErrInvalidQuery
}

// NewQueryBuildError returns a new QueryBuildError. Names are quoted.
func NewQueryBuildError(kind BuildErrorKind, name string) *QueryBuildError {
	return &QueryBuildError{Kind: kind, Name: fmt.Sprintf("%q", name)}
}

// NewArgumentError returns a QueryBuildError for a malformed call.
func NewArgumentError(op, format string, args ...any) *QueryBuildError {
	return &QueryBuildError{Kind: BadArgument, Name: op, Msg: fmt.Sprintf(format, args...)}
}

// IsBuildError reports whether err is a QueryBuildError of the given kind.
// A zero kind matches any QueryBuildError.
func IsBuildError(err error, kind BuildErrorKind) bool {
	if err == nil {
		return false
	}
	var e *QueryBuildError
	return errors.As(err, &e) && (kind == 0 || e.Kind == kind)
}

// NoPrimaryKeyError is returned by primary-key helpers on a model that
// declares no primary key.
type NoPrimaryKeyError struct {
	Model string
}

// Error returns the error string.
func (e *NoPrimaryKeyError) Error() string {
	return fmt.Sprintf("vorm: no primary key on %s", e.Model)
}

// IsNoPrimaryKey returns true if the error is a NoPrimaryKeyError.
func IsNoPrimaryKey(err error) bool {
	if err == nil {
		return false
	}
	var e *NoPrimaryKeyError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("vorm: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError reports that a record failed validation. Lock
// conflicts and uniqueness conflicts are reported this way.
type ValidationError struct {
	Name string // Model name
	Err  error  // Underlying validation errors
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("vorm: validation failed for %s: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given model.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback itself
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("vorm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "vorm: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("vorm: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query execution error with additional context.
type QueryError struct {
	Table string // Table being queried
	Op    string // Operation (e.g., "select", "count", "exists")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("vorm: querying %s (%s): %v", e.Table, e.Op, e.Err)
	}
	return fmt.Sprintf("vorm: querying %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(table, op string, err error) *QueryError {
	return &QueryError{Table: table, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps an insert, update or delete failure.
type MutationError struct {
	Table string // Table being mutated
	Op    string // Operation (e.g., "insert", "update", "delete")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("vorm: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(table, op string, err error) *MutationError {
	return &MutationError{Table: table, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
