package lock

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisoryLocker_AcquireRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	locker := NewAdvisoryLocker(db)

	mock.ExpectExec("SELECT pg_advisory_lock\\(\\$1\\)").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock\\(\\$1\\)").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, locker.Acquire(context.Background(), 42))
	require.NoError(t, locker.Release(context.Background(), 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLocker_Acquire_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	locker := NewAdvisoryLocker(db)

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrConnDone)

	err = locker.Acquire(context.Background(), 42)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
}

func TestAdvisoryLocker_ReleaseUnknownIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewAdvisoryLocker(db).Release(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}
