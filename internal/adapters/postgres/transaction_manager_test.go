package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/longregen/archetype/internal/adapters/retry"
	"github.com/longregen/archetype/internal/domain"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTM(mock pgxmock.PgxPoolIface) *TransactionManager {
	return &TransactionManager{
		db: mock,
		backoff: retry.BackoffConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxRetries:      2,
			Multiplier:      1,
		},
	}
}

func TestTransactionManager_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO population").
		WithArgs("pop_1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = newMockTM(mock).WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, GetTx(ctx))
		_, err := GetTx(ctx).Exec(ctx, "INSERT INTO population (id, created_at) VALUES ($1, $2)", "pop_1", time.Now())
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_Rollback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	testErr := errors.New("test error")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = newMockTM(mock).WithTransaction(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	assert.ErrorIs(t, err, testErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_PanicRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = newMockTM(mock).WithTransaction(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_NestedTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	calls := 0
	err = newMockTM(mock).WithTransaction(setupMockContext(mock), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet(), "no begin for a nested call")
}

func TestTransactionManager_RetriesConflicts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = newMockTM(mock).WithTransaction(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_ConflictExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err = newMockTM(mock).WithTransaction(context.Background(), func(ctx context.Context) error {
		return domain.ErrPersistenceConflict
	})
	assert.ErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
