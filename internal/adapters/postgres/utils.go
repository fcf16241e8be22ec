package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

const DefaultQueryTimeout = 30 * time.Second

// withTimeout wraps a context with a default query timeout if not already set
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	// Check if context already has a deadline
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}

// Nullable field converters - from Go to SQL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// getString extracts a string from sql.NullString, returning empty string if null
func getString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// checkNoRows returns true if the error is pgx.ErrNoRows (indicating no result found)
func checkNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Postgres SQLSTATEs that a retry can resolve.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapWriteError tags conflicts so callers can retry them.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrPersistenceConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ciColumns holds the nullable scan targets for one confidence interval.
type ciColumns struct {
	Lower, Upper, Median, Level sql.NullFloat64
	SampleSize                  sql.NullInt32
}

func (c ciColumns) interval() *models.ConfidenceInterval {
	if !c.Median.Valid || !c.Lower.Valid || !c.Upper.Valid {
		return nil
	}
	return &models.ConfidenceInterval{
		Lower:      c.Lower.Float64,
		Upper:      c.Upper.Float64,
		Median:     c.Median.Float64,
		SampleSize: int(c.SampleSize.Int32),
		Level:      c.Level.Float64,
	}
}

// ciArgs flattens an optional interval into lower, upper, median,
// sample size, level.
func ciArgs(ci *models.ConfidenceInterval) []any {
	if ci == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{ci.Lower, ci.Upper, ci.Median, ci.SampleSize, ci.Level}
}
