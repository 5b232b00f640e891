package vorm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vorm"
)

func TestRecordNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := vorm.NewRecordNotFoundError("orders")
		assert.Equal(t, "vorm: orders not found", err.Error())

		err = vorm.NewRecordNotFoundError("order_lines", 1, "a")
		assert.Equal(t, "vorm: order_lines not found (key=1, a)", err.Error())
		assert.Equal(t, []any{1, "a"}, err.Key())
		assert.Equal(t, "order_lines", err.Table())
	})

	t.Run("Is", func(t *testing.T) {
		err := vorm.NewRecordNotFoundError("orders", 7)
		assert.True(t, errors.Is(err, vorm.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := vorm.NewRecordNotFoundError("orders", 7)
		assert.True(t, vorm.IsNotFound(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, vorm.IsNotFound(wrapped))

		// Sentinel error
		assert.True(t, vorm.IsNotFound(vorm.ErrNotFound))

		// Non-matching error
		assert.False(t, vorm.IsNotFound(errors.New("other error")))
		assert.False(t, vorm.IsNotFound(nil))
	})
}

func TestColumnNotLoadedError(t *testing.T) {
	err := vorm.NewColumnNotLoadedError("total")
	assert.Equal(t, `vorm: column "total" was not loaded`, err.Error())
	assert.True(t, vorm.IsColumnNotLoaded(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, vorm.IsColumnNotLoaded(errors.New("other error")))
	assert.False(t, vorm.IsColumnNotLoaded(nil))
}

func TestQueryBuildError(t *testing.T) {
	tests := []struct {
		kind vorm.BuildErrorKind
		name string
		want string
	}{
		{vorm.UnknownColumn, "x", `vorm: unknown column: "x"`},
		{vorm.AmbiguousColumn, "id", `vorm: column "id" is ambiguous`},
		{vorm.UnknownRelation, "foo", `vorm: unknown relation: "foo"`},
		{vorm.AmbiguousRelation, "foo", `vorm: relation "foo" is ambiguous`},
		{vorm.UnreachableTable, "t1", `vorm: "t1" is unreachable`},
		{vorm.NoTableAlias, "x", `vorm: no table alias for "x"`},
		{vorm.DuplicateAlias, "t1", `vorm: not unique table alias: "t1"`},
		{vorm.InvalidAlias, "1a", `vorm: invalid table alias: "1a"`},
		{vorm.NullableFirstColumn, "t2.note", `vorm: "t2.note": first column must be NOT NULL`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			err := vorm.NewQueryBuildError(tt.kind, tt.name)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, errors.Is(err, vorm.ErrInvalidQuery))
			assert.True(t, vorm.IsBuildError(err, tt.kind))
			assert.True(t, vorm.IsBuildError(err, 0))
		})
	}

	t.Run("Argument", func(t *testing.T) {
		err := vorm.NewArgumentError("join()", "takes %d arguments", 2)
		assert.Equal(t, "vorm: join(): takes 2 arguments", err.Error())
		assert.True(t, vorm.IsBuildError(err, vorm.BadArgument))
		assert.False(t, vorm.IsBuildError(err, vorm.UnknownColumn))
	})

	assert.False(t, vorm.IsBuildError(nil, 0))
	assert.False(t, vorm.IsBuildError(errors.New("other error"), 0))
}

func TestNoPrimaryKeyError(t *testing.T) {
	err := &vorm.NoPrimaryKeyError{Model: "Log"}
	assert.Equal(t, "vorm: no primary key on Log", err.Error())
	assert.True(t, vorm.IsNoPrimaryKey(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, vorm.IsNoPrimaryKey(nil))
}

func TestConstraintError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := vorm.NewConstraintError("UNIQUE constraint failed", nil)
		assert.Equal(t, "vorm: constraint failed: UNIQUE constraint failed", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("db error")
		err := vorm.NewConstraintError("constraint violated", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsConstraintError", func(t *testing.T) {
		err := vorm.NewConstraintError("check failed", nil)
		assert.True(t, vorm.IsConstraintError(err))
		assert.True(t, vorm.IsConstraintError(fmt.Errorf("wrapper: %w", err)))
		assert.False(t, vorm.IsConstraintError(errors.New("other error")))
		assert.False(t, vorm.IsConstraintError(nil))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := vorm.NewValidationError("Order", errors.New("conflict"))
		assert.Equal(t, "vorm: validation failed for Order: conflict", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("taken")
		err := vorm.NewValidationError("User", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("IsValidationError", func(t *testing.T) {
		err := vorm.NewValidationError("User", errors.New("blank"))
		assert.True(t, vorm.IsValidationError(err))
		assert.True(t, vorm.IsValidationError(fmt.Errorf("wrapper: %w", err)))
		assert.False(t, vorm.IsValidationError(errors.New("other error")))
		assert.False(t, vorm.IsValidationError(nil))
	})
}

func TestRollbackError(t *testing.T) {
	underlying := errors.New("connection lost")
	err := &vorm.RollbackError{Err: underlying}
	assert.Equal(t, "vorm: rollback failed: connection lost", err.Error())
	assert.True(t, errors.Is(err, underlying))
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		assert.Nil(t, vorm.NewAggregateError())
		assert.Nil(t, vorm.NewAggregateError(nil, nil))
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("single error")
		assert.Equal(t, single, vorm.NewAggregateError(nil, single, nil))
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err2 := errors.New("error 2")
		err := vorm.NewAggregateError(err1, err2)

		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.Contains(t, err.Error(), "error 1")
		assert.Contains(t, err.Error(), "error 2")
		assert.True(t, errors.Is(err, err2))
	})
}

func TestQueryAndMutationError(t *testing.T) {
	underlying := errors.New("syntax error")

	qerr := vorm.NewQueryError("orders", "count", underlying)
	assert.Equal(t, "vorm: querying orders (count): syntax error", qerr.Error())
	assert.True(t, vorm.IsQueryError(qerr))
	assert.True(t, errors.Is(qerr, underlying))
	assert.Equal(t, "vorm: querying orders: syntax error", vorm.NewQueryError("orders", "", underlying).Error())

	merr := vorm.NewMutationError("orders", "insert", underlying)
	assert.Equal(t, "vorm: insert orders: syntax error", merr.Error())
	assert.True(t, vorm.IsMutationError(merr))
	assert.False(t, vorm.IsMutationError(qerr))
}

func TestIdentityKey(t *testing.T) {
	k := vorm.IdentityKey{Table: "orders", ID: "1\x00a"}
	assert.Equal(t, "orders:1,a", k.String())
}
