package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/constants"
	"github.com/RezaEskandarii/genjob/internal/state"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresJobStore(t *testing.T) {
	p, _ := newTestPool(t)
	require.NotNil(t, NewPostgresJobStore(p))
}

func TestPostgresJobStore_Insert(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO genjob_schema.jobs").
		WithArgs("p1-storyboard-0", "p1", "scene_image", "CREATED", `{"a":1}`, 0, 3, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job := &types.Job{
		ID:         "p1-storyboard-0",
		ProjectID:  "p1",
		Type:       "scene_image",
		Payload:    json.RawMessage(`{"a":1}`),
		MaxRetries: 3,
	}
	require.NoError(t, s.Insert(context.Background(), job))
	assert.Equal(t, state.StateCreated, job.State)
	assert.Equal(t, now, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Insert_Duplicate(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("INSERT INTO genjob_schema.jobs").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.Insert(context.Background(), &types.Job{ID: "p1-storyboard-0", ProjectID: "p1", Type: "t"})
	assert.ErrorIs(t, err, custom_errors.ErrJobAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_FindByID(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("SELECT (.+) FROM genjob_schema.jobs WHERE id").
		WithArgs("p1-storyboard-0").
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(jobRow("p1-storyboard-0", "p1", "CREATED", 0, 3, 0)...))

	job, err := s.FindByID(context.Background(), "p1-storyboard-0")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "p1", job.ProjectID)
	assert.Equal(t, state.StateCreated, job.State)
	assert.Equal(t, 3, job.MaxRetries)
	assert.JSONEq(t, `{"prompt":"castle"}`, string(job.Payload))
	assert.Nil(t, job.Result)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.StartedAt)
}

func TestPostgresJobStore_FindByID_NotFound(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("SELECT (.+) FROM genjob_schema.jobs WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	job, err := s.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func expectClaimLock(mock sqlmock.Sqlmock, id, projectID string) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT project_id FROM genjob_schema.jobs WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(projectID))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, hashtext\(\$2\)\)`).
		WithArgs(int64(constants.ClaimLockSpace), projectID).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestPostgresJobStore_Claim(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	row := jobRow("p1-storyboard-0", "p1", "RUNNING", 0, 3, 1)
	row[12] = "worker-a"
	row[13] = time.Now()

	expectClaimLock(mock, "p1-storyboard-0", "p1")
	mock.ExpectQuery(`UPDATE genjob_schema.jobs AS j\s+SET state = 'RUNNING'`).
		WithArgs("p1-storyboard-0", "worker-a", 5).
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(row...))
	mock.ExpectCommit()

	job, err := s.Claim(context.Background(), "p1-storyboard-0", "worker-a", 5)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, state.StateRunning, job.State)
	assert.Equal(t, 1, job.Attempt)
	require.NotNil(t, job.WorkerID)
	assert.Equal(t, "worker-a", *job.WorkerID)
	assert.NotNil(t, job.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Claim_LostRaceIsSilent(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	expectClaimLock(mock, "p1-storyboard-0", "p1")
	mock.ExpectQuery("UPDATE genjob_schema.jobs AS j").
		WithArgs("p1-storyboard-0", "worker-b", 5).
		WillReturnRows(sqlmock.NewRows(jobColumnNames))
	mock.ExpectCommit()

	job, err := s.Claim(context.Background(), "p1-storyboard-0", "worker-b", 5)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Claim_MissingJob(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_id FROM genjob_schema.jobs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))
	mock.ExpectCommit()

	job, err := s.Claim(context.Background(), "missing", "worker-b", 5)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_Claim_StorageError(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	expectClaimLock(mock, "p1-storyboard-0", "p1")
	mock.ExpectQuery("UPDATE genjob_schema.jobs AS j").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	job, err := s.Claim(context.Background(), "p1-storyboard-0", "worker-b", 5)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresJobStore_UpdateState_Applied(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectExec("UPDATE genjob_schema.jobs").
		WithArgs("p1-storyboard-0", 1, "RUNNING", "COMPLETED", `{"url":"s3://x"}`, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := s.UpdateState(context.Background(), types.StateUpdate{
		JobID:   "p1-storyboard-0",
		Attempt: 1,
		From:    state.StateRunning,
		To:      state.StateCompleted,
		Result:  json.RawMessage(`{"url":"s3://x"}`),
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateState_FailedIncrementsRetry(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)
	msg := "model timeout"

	mock.ExpectExec("UPDATE genjob_schema.jobs").
		WithArgs("p1-storyboard-0", 1, "RUNNING", "FAILED", nil, msg, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := s.UpdateState(context.Background(), types.StateUpdate{
		JobID: "p1-storyboard-0", Attempt: 1, From: state.StateRunning, To: state.StateFailed, Error: &msg,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_UpdateState_StaleAttemptIsNoop(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectExec("UPDATE genjob_schema.jobs").
		WithArgs("p1-storyboard-0", 1, "RUNNING", "COMPLETED", nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := s.UpdateState(context.Background(), types.StateUpdate{
		JobID: "p1-storyboard-0", Attempt: 1, From: state.StateRunning, To: state.StateCompleted,
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPostgresJobStore_Cancel(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("UPDATE genjob_schema.jobs\\s+SET state = 'CANCELLED'").
		WithArgs("p1-storyboard-0").
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(jobRow("p1-storyboard-0", "p1", "CANCELLED", 0, 3, 1)...))

	job, err := s.Cancel(context.Background(), "p1-storyboard-0")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, state.StateCancelled, job.State)
}

func TestPostgresJobStore_MaxRetryCount(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(retry_count\\), 0\\)").
		WithArgs(`p\_1-story-%`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))

	n, err := s.MaxRetryCount(context.Background(), "p_1-story-")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobStore_ListByProject(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectQuery("SELECT (.+) FROM genjob_schema.jobs\\s+WHERE project_id = \\$1\\s+ORDER BY created_at DESC").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(jobColumnNames).
			AddRow(jobRow("p1-b-0", "p1", "CREATED", 0, 3, 0)...).
			AddRow(jobRow("p1-a-0", "p1", "COMPLETED", 0, 3, 1)...))

	jobs, err := s.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "p1-b-0", jobs[0].ID)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPostgresJobStore_Heartbeat(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)

	mock.ExpectExec("UPDATE genjob_schema.jobs\\s+SET updated_at = NOW\\(\\)").
		WithArgs("p1-a-0", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.Heartbeat(context.Background(), "p1-a-0", 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresJobStore_FailStale(t *testing.T) {
	p, mock := newTestPool(t)
	s := NewPostgresJobStore(p)
	before := time.Now().Add(-5 * time.Minute)

	mock.ExpectQuery("UPDATE genjob_schema.jobs\\s+SET state = 'FAILED'").
		WithArgs(before, "liveness deadline exceeded").
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(jobRow("p1-a-0", "p1", "FAILED", 1, 3, 1)...))

	jobs, err := s.FailStale(context.Background(), before, "liveness deadline exceeded")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, state.StateFailed, jobs[0].State)
	assert.Equal(t, 1, jobs[0].RetryCount)
}
