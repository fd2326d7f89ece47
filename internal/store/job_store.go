package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/genjob/types"
)

// JobStore persists jobs. Claim and UpdateState are single conditional
// updates; losing a race is reported as a nil job or false, never an error.
type JobStore interface {
	// Insert stores a new CREATED job. A duplicate id yields ErrJobAlreadyExists.
	Insert(ctx context.Context, job *types.Job) error

	// FindByID returns nil, nil when the job does not exist.
	FindByID(ctx context.Context, id string) (*types.Job, error)

	// Claim moves a claimable job to RUNNING and bumps its attempt, provided
	// the project has fewer than ceiling RUNNING jobs.
	Claim(ctx context.Context, id, workerID string, ceiling int) (*types.Job, error)

	// UpdateState applies u only if the row still has u.Attempt and u.From.
	UpdateState(ctx context.Context, u types.StateUpdate) (bool, error)

	// Cancel sets CANCELLED regardless of the current state.
	Cancel(ctx context.Context, id string) (*types.Job, error)

	// MaxRetryCount is the highest retry count among ids starting with prefix, 0 if none.
	MaxRetryCount(ctx context.Context, idPrefix string) (int, error)

	// ListByProject returns a project's jobs, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*types.Job, error)

	// Heartbeat touches a RUNNING job held at attempt.
	Heartbeat(ctx context.Context, id string, attempt int) (bool, error)

	// FailStale forces RUNNING jobs not updated since before into FAILED.
	FailStale(ctx context.Context, before time.Time, errText string) ([]*types.Job, error)
}
