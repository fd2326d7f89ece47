package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genjob/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	acquireErr error
	acquired   []int64
	released   []int64
}

func (m *mockLocker) Acquire(ctx context.Context, lockID int64) error {
	if m.acquireErr != nil {
		return m.acquireErr
	}
	m.acquired = append(m.acquired, lockID)
	return nil
}

func (m *mockLocker) Release(ctx context.Context, lockID int64) error {
	m.released = append(m.released, lockID)
	return nil
}

func TestReadSQLScripts(t *testing.T) {
	scripts, err := readSQLScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "001_jobs.sql", scripts[0].name)
	assert.Equal(t, "002_leases.sql", scripts[1].name)
	assert.Equal(t, "003_asset_owners.sql", scripts[2].name)
	for _, s := range scripts {
		assert.Contains(t, s.body, "genjob_schema.")
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS genjob_schema").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS genjob_schema.jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS genjob_schema.leases").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS genjob_schema.projects").WillReturnResult(sqlmock.NewResult(0, 0))

	locker := &mockLocker{}
	require.NoError(t, Migrate(context.Background(), db, locker, nil))
	assert.Equal(t, []int64{constants.MigrationLock}, locker.acquired)
	assert.Equal(t, []int64{constants.MigrationLock}, locker.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	locker := &mockLocker{acquireErr: errors.New("lock busy")}
	err = Migrate(context.Background(), db, locker, nil)
	assert.EqualError(t, err, "lock busy")
	assert.Empty(t, locker.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ScriptFailureReleasesLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("genjob_schema.jobs").WillReturnError(errors.New("permission denied"))

	locker := &mockLocker{}
	err = Migrate(context.Background(), db, locker, nil)
	assert.ErrorContains(t, err, "001_jobs.sql")
	assert.Equal(t, []int64{constants.MigrationLock}, locker.released)
}
