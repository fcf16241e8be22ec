package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/longregen/archetype/internal/adapters/retry"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/ports"
)

// contextKey is a type for transaction context keys
type contextKey string

const txKey contextKey = "pgx_tx"

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransactionManager implements the ports.TransactionManager interface.
// Transactions that fail with a persistence conflict are replayed with
// backoff; the callback must therefore be safe to run more than once.
type TransactionManager struct {
	db      txBeginner
	backoff retry.BackoffConfig
}

var _ ports.TransactionManager = (*TransactionManager)(nil)

// WithTransaction executes a function within a database transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Check if we're already in a transaction
	if GetTx(ctx) != nil {
		// Nested transaction - just execute the function
		return fn(ctx)
	}

	return retry.WithBackoffIf(ctx, tm.backoff, isConflict, func() error {
		return tm.run(ctx, fn)
	})
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrPersistenceConflict)
}

func (tm *TransactionManager) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := tm.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	// Ensure rollback on panic
	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("panic recovered: %v, rollback error: %w", r, rbErr)
			} else {
				err = fmt.Errorf("panic recovered in transaction: %v", r)
			}
		}
	}()

	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapWriteError("commit", err)
	}

	return nil
}

// GetTx retrieves the transaction from the context, if any
func GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// GetConn returns the context's transaction, or db when there is none.
func GetConn(ctx context.Context, db querier) querier {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return db
}
