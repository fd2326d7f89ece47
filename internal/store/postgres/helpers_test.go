package postgres

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genjob/internal/pool"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/stretchr/testify/require"
)

var jobColumnNames = []string{
	"id", "project_id", "type", "state", "payload", "result", "error", "retry_count", "max_retries",
	"attempt", "unique_key", "asset_key", "worker_id", "started_at", "created_at", "updated_at",
}

func newTestPool(t *testing.T) (*pool.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := pool.New(db, pool.Options{
		Pool:    config.PoolConfig{MaxOpenConns: 4},
		Breaker: config.BreakerConfig{Threshold: 20, ResetTimeout: time.Minute},
	})
	return m, mock
}

func jobRow(id, projectID, jobState string, retryCount, maxRetries, attempt int) []driver.Value {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []driver.Value{
		id, projectID, "scene_image", jobState, []byte(`{"prompt":"castle"}`), nil, nil,
		retryCount, maxRetries, attempt, nil, nil, nil, nil, now, now,
	}
}
