// Package sqlite is the single-file store used for local runs. It
// implements the same repositories as the postgres adapter.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longregen/archetype/internal/adapters/retry"
	"github.com/longregen/archetype/internal/domain"
	_ "modernc.org/sqlite"
)

type contextKey string

const txKey contextKey = "sqlite_tx"

// SQLite result codes treated as write conflicts. Busy and locked match on
// the primary code since extended codes are enabled.
const (
	codeBusy                 = 5
	codeLocked               = 6
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

type Store struct {
	db      *sql.DB
	backoff retry.BackoffConfig
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db, backoff: retry.PersistenceConfig()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction runs fn in a transaction, replaying it on write
// conflicts. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return fn(ctx)
	}
	return retry.WithBackoffIf(ctx, s.backoff, isConflict, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapWriteError("begin", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic recovered in transaction: %v", r)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteError("commit", err)
	}
	return nil
}

// exec runs a single write, retrying conflicts when not inside a
// transaction (a transaction retries as a whole).
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	run := func() error {
		var err error
		res, err = s.conn(ctx).ExecContext(ctx, query, args...)
		return mapWriteError(op, err)
	}
	if _, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return res, run()
	}
	return res, retry.WithBackoffIf(ctx, s.backoff, isConflict, run)
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrPersistenceConflict)
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		code := coded.Code()
		switch {
		case code&0xff == codeBusy, code&0xff == codeLocked,
			code == codeConstraintPrimaryKey, code == codeConstraintUnique:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrPersistenceConflict, err.Error())
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%s: %w: %s", op, domain.ErrPersistenceConflict, err.Error())
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
