package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/constants"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/internal/state"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
)

const jobColumns = `id, project_id, type, state, payload, result, error, retry_count, max_retries,
	attempt, unique_key, asset_key, worker_id, started_at, created_at, updated_at`

type PostgresJobStore struct {
	db pool.Querier
}

var _ store.JobStore = (*PostgresJobStore)(nil)

func NewPostgresJobStore(db pool.Querier) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func (s *PostgresJobStore) Insert(ctx context.Context, job *types.Job) error {
	query := `
		INSERT INTO genjob_schema.jobs (
			id, project_id, type, state, payload, retry_count, max_retries,
			attempt, unique_key, asset_key, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query, func(row *sql.Row) error {
		return row.Scan(&job.CreatedAt, &job.UpdatedAt)
	},
		job.ID,
		job.ProjectID,
		job.Type,
		string(state.StateCreated),
		jsonParam(job.Payload),
		job.RetryCount,
		job.MaxRetries,
		job.UniqueKey,
		job.AssetKey,
	)
	if err != nil {
		if pool.IsUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.ID, custom_errors.ErrJobAlreadyExists)
		}
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	job.State = state.StateCreated
	job.Attempt = 0
	return nil
}

func (s *PostgresJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM genjob_schema.jobs WHERE id = $1`

	var job *types.Job
	err := s.db.QueryRow(ctx, query, func(row *sql.Row) error {
		var err error
		job, err = scanJob(row)
		return err
	}, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job %s: %w", id, err)
	}
	return job, nil
}

// Claim is one conditional UPDATE. The row must still be claimable and the
// project must be below the ceiling, both evaluated by the same statement.
// A per-project transaction lock taken first makes concurrent claims in one
// project count each other's RUNNING rows, so the ceiling is never exceeded.
func (s *PostgresJobStore) Claim(ctx context.Context, id, workerID string, ceiling int) (*types.Job, error) {
	query := `
		UPDATE genjob_schema.jobs AS j
		SET state = 'RUNNING',
		    attempt = j.attempt + 1,
		    worker_id = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE j.id = $1
		  AND (j.state = 'CREATED' OR (j.state = 'FAILED' AND j.retry_count < j.max_retries))
		  AND (
		      SELECT COUNT(*) FROM genjob_schema.jobs AS r
		      WHERE r.project_id = j.project_id AND r.state = 'RUNNING'
		  ) < $3
		RETURNING ` + jobColumns

	var job *types.Job
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var projectID string
		err := tx.QueryRowContext(ctx, `SELECT project_id FROM genjob_schema.jobs WHERE id = $1`, id).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, constants.ClaimLockSpace, projectID); err != nil {
			return err
		}

		job, err = scanJob(tx.QueryRowContext(ctx, query, id, workerID, ceiling))
		if errors.Is(err, sql.ErrNoRows) {
			job = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresJobStore) UpdateState(ctx context.Context, u types.StateUpdate) (bool, error) {
	query := `
		UPDATE genjob_schema.jobs
		SET state = $4,
		    result = COALESCE($5::jsonb, result),
		    error = $6,
		    retry_count = retry_count + $7,
		    updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND state = $3
	`

	retryDelta := 0
	if u.To == state.StateFailed {
		retryDelta = 1
	}

	res, err := s.db.Exec(ctx, query,
		u.JobID,
		u.Attempt,
		string(u.From),
		string(u.To),
		jsonParam(u.Result),
		u.Error,
		retryDelta,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job %s: %w", u.JobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PostgresJobStore) Cancel(ctx context.Context, id string) (*types.Job, error) {
	query := `
		UPDATE genjob_schema.jobs
		SET state = 'CANCELLED', updated_at = NOW()
		WHERE id = $1
		RETURNING ` + jobColumns

	var job *types.Job
	err := s.db.QueryRow(ctx, query, func(row *sql.Row) error {
		var err error
		job, err = scanJob(row)
		return err
	}, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresJobStore) MaxRetryCount(ctx context.Context, idPrefix string) (int, error) {
	query := `
		SELECT COALESCE(MAX(retry_count), 0)
		FROM genjob_schema.jobs
		WHERE id LIKE $1 ESCAPE '\'
	`

	var maxRetry int
	err := s.db.QueryRow(ctx, query, func(row *sql.Row) error {
		return row.Scan(&maxRetry)
	}, escapeLike(idPrefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count for %s: %w", idPrefix, err)
	}
	return maxRetry, nil
}

func (s *PostgresJobStore) ListByProject(ctx context.Context, projectID string) ([]*types.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM genjob_schema.jobs
		WHERE project_id = $1
		ORDER BY created_at DESC, id DESC
	`

	jobs := make([]*types.Job, 0)
	err := s.db.Query(ctx, query, func(rows *sql.Rows) error {
		job, err := scanJob(rows)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	}, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs of project %s: %w", projectID, err)
	}
	return jobs, nil
}

func (s *PostgresJobStore) Heartbeat(ctx context.Context, id string, attempt int) (bool, error) {
	query := `
		UPDATE genjob_schema.jobs
		SET updated_at = NOW()
		WHERE id = $1 AND attempt = $2 AND state = 'RUNNING'
	`

	res, err := s.db.Exec(ctx, query, id, attempt)
	if err != nil {
		return false, fmt.Errorf("failed to heartbeat job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PostgresJobStore) FailStale(ctx context.Context, before time.Time, errText string) ([]*types.Job, error) {
	query := `
		UPDATE genjob_schema.jobs
		SET state = 'FAILED',
		    error = $2,
		    retry_count = retry_count + 1,
		    updated_at = NOW()
		WHERE state = 'RUNNING' AND updated_at < $1
		RETURNING ` + jobColumns

	jobs := make([]*types.Job, 0)
	err := s.db.Query(ctx, query, func(rows *sql.Rows) error {
		job, err := scanJob(rows)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	}, before, errText)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*types.Job, error) {
	var (
		job       types.Job
		jobState  string
		payload   []byte
		result    []byte
		errText   sql.NullString
		uniqueKey sql.NullString
		assetKey  sql.NullString
		workerID  sql.NullString
		startedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Type,
		&jobState,
		&payload,
		&result,
		&errText,
		&job.RetryCount,
		&job.MaxRetries,
		&job.Attempt,
		&uniqueKey,
		&assetKey,
		&workerID,
		&startedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = state.JobState(jobState)
	if len(payload) > 0 {
		job.Payload = json.RawMessage(payload)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	job.Error = nullString(errText)
	job.UniqueKey = nullString(uniqueKey)
	job.AssetKey = nullString(assetKey)
	job.WorkerID = nullString(workerID)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	return &job, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// jsonParam passes JSON as text; lib/pq would otherwise send []byte as bytea.
func jsonParam(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
