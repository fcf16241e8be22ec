package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/archetype/internal/adapters/retry"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// database is the pool as the repositories use it.
type database interface {
	querier
	txBeginner
}

type BaseRepository struct {
	pool    *pgxpool.Pool
	db      database
	backoff retry.BackoffConfig
}

func NewBaseRepository(pool *pgxpool.Pool) BaseRepository {
	return BaseRepository{pool: pool, db: pool, backoff: retry.PersistenceConfig()}
}

func (r *BaseRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *BaseRepository) conn(ctx context.Context) querier {
	return GetConn(ctx, r.db)
}

// exec runs a single write. Outside a transaction a conflict is retried with
// backoff; inside one it is left to the enclosing transaction.
func (r *BaseRepository) exec(ctx context.Context, op, query string, args ...any) (pgconn.CommandTag, error) {
	conn := r.conn(ctx)
	if GetTx(ctx) != nil {
		tag, err := conn.Exec(ctx, query, args...)
		return tag, mapWriteError(op, err)
	}

	var tag pgconn.CommandTag
	err := retry.WithBackoffIf(ctx, r.backoff, isConflict, func() error {
		var err error
		tag, err = conn.Exec(ctx, query, args...)
		return mapWriteError(op, err)
	})
	return tag, err
}

// inTx runs fn inside the context's transaction, or a new one.
func (r *BaseRepository) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if GetTx(ctx) != nil {
		return fn(ctx)
	}
	return (&TransactionManager{db: r.db, backoff: r.backoff}).WithTransaction(ctx, fn)
}
