package orm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/syssam/vorm"
)

// Begin starts a transaction and clears the identity cache.
func (db *DB) Begin(ctx context.Context) error {
	if db.tx != nil {
		return errors.New("orm: transaction already open")
	}
	db.depth = 0
	db.trace(ctx, "BEGIN", nil)
	tx, err := db.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("orm: begin: %w", err)
	}
	db.tx, db.depth = tx, 1
	db.clearIdentity()
	return nil
}

// Commit commits the transaction.
func (db *DB) Commit(ctx context.Context) error {
	tx := db.tx
	if tx == nil {
		return errors.New("orm: commit: no transaction")
	}
	db.tx, db.depth = nil, 0
	db.trace(ctx, "COMMIT", nil)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("orm: commit: %w", err)
	}
	return nil
}

// Rollback rolls the transaction back and clears the identity cache.
func (db *DB) Rollback(ctx context.Context) error {
	tx := db.tx
	if tx == nil {
		return errors.New("orm: rollback: no transaction")
	}
	db.tx, db.depth = nil, 0
	db.trace(ctx, "ROLLBACK", nil)
	db.clearIdentity()
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("orm: rollback: %w", err)
	}
	return nil
}

// Depth returns the transaction depth: 0 outside a transaction, 1 in it,
// plus one per open savepoint.
func (db *DB) Depth() int { return db.depth }

// Txn is a transaction scope. At depth 0 it begins a transaction; inside
// one it sets a savepoint named p<depth>.
type Txn struct {
	db   *DB
	sp   int
	done bool
}

// Txn opens a transaction scope. Every scope must be closed with End.
//
//	t, err := db.Txn(ctx)
//	if err != nil {
//	    return err
//	}
//	err = work(ctx)
//	return errors.Join(err, t.End(ctx, err))
func (db *DB) Txn(ctx context.Context) (*Txn, error) {
	sp := db.depth
	if sp == 0 {
		if err := db.Begin(ctx); err != nil {
			return nil, err
		}
		return &Txn{db: db}, nil
	}
	if _, err := db.exec(ctx, "SAVEPOINT "+savepoint(sp), nil); err != nil {
		return nil, err
	}
	db.depth = sp + 1
	return &Txn{db: db, sp: sp}, nil
}

func savepoint(n int) string { return "p" + strconv.Itoa(n) }

// End closes the scope. A nil cause commits the transaction or releases
// the savepoint; otherwise they are rolled back. End is a no-op when an
// enclosing scope was already resolved.
func (t *Txn) End(ctx context.Context, cause error) error {
	if t.done {
		return vorm.ErrTxDone
	}
	t.done = true
	db := t.db
	switch {
	case t.sp >= db.depth:
		return nil
	case t.sp == 0 && cause != nil:
		return db.Rollback(ctx)
	case t.sp == 0:
		return db.Commit(ctx)
	}
	db.depth = t.sp
	stmt := "RELEASE SAVEPOINT "
	if cause != nil {
		stmt = "ROLLBACK TO SAVEPOINT "
	}
	_, err := db.exec(ctx, stmt+savepoint(t.sp), nil)
	return err
}

// Rollback discards the work of the scope and keeps it open: a savepoint
// is rolled back and set again, a transaction is rolled back and begun
// again.
func (t *Txn) Rollback(ctx context.Context) error {
	if t.done {
		return vorm.ErrTxDone
	}
	db := t.db
	if t.sp == 0 {
		if err := db.Rollback(ctx); err != nil {
			return err
		}
		return db.Begin(ctx)
	}
	db.depth = t.sp
	name := savepoint(t.sp)
	if _, err := db.exec(ctx, "ROLLBACK TO SAVEPOINT "+name, nil); err != nil {
		return err
	}
	if _, err := db.exec(ctx, "SAVEPOINT "+name, nil); err != nil {
		return err
	}
	db.depth = t.sp + 1
	return nil
}

// TxnDo runs fn in a transaction scope. The scope is rolled back when fn
// returns an error or panics, and committed or released otherwise. A
// panic is re-raised after the rollback.
func (db *DB) TxnDo(ctx context.Context, fn func(ctx context.Context, t *Txn) error) (err error) {
	t, err := db.Txn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			if rerr := t.End(ctx, fmt.Errorf("orm: panic: %v", v)); rerr != nil {
				db.log.ErrorContext(ctx, "orm: rollback after panic", "error", rerr)
			}
			panic(v)
		}
	}()
	if err := fn(ctx, t); err != nil {
		if rerr := t.End(ctx, err); rerr != nil {
			return vorm.NewAggregateError(err, &vorm.RollbackError{Err: rerr})
		}
		return err
	}
	return t.End(ctx, nil)
}
