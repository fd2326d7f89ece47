package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/genjob/internal/state"
)

// Job is one unit of schedulable generative work.
type Job struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	Type       string          `json:"type"`
	State      state.JobState  `json:"state"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	RetryCount int             `json:"retryCount"`
	MaxRetries int             `json:"maxRetries"`
	Attempt    int             `json:"attempt"`
	UniqueKey  *string         `json:"uniqueKey,omitempty"`
	AssetKey   *string         `json:"assetKey,omitempty"`
	WorkerID   *string         `json:"workerId,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// RetriesExhausted reports whether a failed job has used up its retry budget.
func (j *Job) RetriesExhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// CreateJobSpec describes a job to insert. ID is normally derived with
// JobID so that re-submitting the same step is idempotent.
type CreateJobSpec struct {
	ID                    string          `validate:"required"`
	ProjectID             string          `validate:"required"`
	Type                  string          `validate:"required"`
	Payload               json.RawMessage `validate:"-"`
	StartingRetryCount    int             `validate:"gte=0"`
	MaxAdditionalAttempts int             `validate:"gte=0"`
	UniqueKey             *string
	AssetKey              *string
}

// MaxRetries is the absolute retry ceiling stored with the job.
func (s CreateJobSpec) MaxRetries() int {
	return s.StartingRetryCount + s.MaxAdditionalAttempts
}

// StateUpdate is the fenced mutation applied by UpdateState.
type StateUpdate struct {
	JobID   string
	Attempt int
	From    state.JobState
	To      state.JobState
	Result  json.RawMessage
	Error   *string
}
