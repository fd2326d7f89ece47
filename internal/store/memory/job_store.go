package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/internal/state"
	"github.com/RezaEskandarii/genjob/internal/store"
	"github.com/RezaEskandarii/genjob/types"
)

// JobStore keeps jobs in process memory. A single mutex gives Claim and
// UpdateState the same all-or-nothing behaviour as the SQL statements.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
	now  func() time.Time
}

var _ store.JobStore = (*JobStore)(nil)

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*types.Job), now: time.Now}
}

func (s *JobStore) Insert(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, custom_errors.ErrJobAlreadyExists)
	}
	now := s.now()
	job.State = state.StateCreated
	job.Attempt = 0
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *JobStore) FindByID(_ context.Context, id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (s *JobStore) Claim(_ context.Context, id, workerID string, ceiling int) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !claimable(job) {
		return nil, nil
	}
	if s.runningLocked(job.ProjectID) >= ceiling {
		return nil, nil
	}

	now := s.now()
	job.State = state.StateRunning
	job.Attempt++
	job.WorkerID = &workerID
	job.StartedAt = &now
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func (s *JobStore) UpdateState(_ context.Context, u types.StateUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[u.JobID]
	if !ok || job.Attempt != u.Attempt || job.State != u.From {
		return false, nil
	}

	job.State = u.To
	if len(u.Result) > 0 {
		job.Result = append([]byte(nil), u.Result...)
	}
	job.Error = u.Error
	if u.To == state.StateFailed {
		job.RetryCount++
	}
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *JobStore) Cancel(_ context.Context, id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	job.State = state.StateCancelled
	job.UpdatedAt = s.now()
	return cloneJob(job), nil
}

func (s *JobStore) MaxRetryCount(_ context.Context, idPrefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxRetry := 0
	for id, job := range s.jobs {
		if strings.HasPrefix(id, idPrefix) && job.RetryCount > maxRetry {
			maxRetry = job.RetryCount
		}
	}
	return maxRetry, nil
}

func (s *JobStore) ListByProject(_ context.Context, projectID string) ([]*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*types.Job, 0)
	for _, job := range s.jobs {
		if job.ProjectID == projectID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
	return jobs, nil
}

func (s *JobStore) Heartbeat(_ context.Context, id string, attempt int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Attempt != attempt || job.State != state.StateRunning {
		return false, nil
	}
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *JobStore) FailStale(_ context.Context, before time.Time, errText string) ([]*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := make([]*types.Job, 0)
	for _, job := range s.jobs {
		if job.State != state.StateRunning || !job.UpdatedAt.Before(before) {
			continue
		}
		msg := errText
		job.State = state.StateFailed
		job.Error = &msg
		job.RetryCount++
		job.UpdatedAt = s.now()
		failed = append(failed, cloneJob(job))
	}
	return failed, nil
}

func (s *JobStore) runningLocked(projectID string) int {
	n := 0
	for _, j := range s.jobs {
		if j.ProjectID == projectID && j.State == state.StateRunning {
			n++
		}
	}
	return n
}

func claimable(job *types.Job) bool {
	switch job.State {
	case state.StateCreated:
		return true
	case state.StateFailed:
		return job.RetryCount < job.MaxRetries
	default:
		return false
	}
}

func cloneJob(j *types.Job) *types.Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	if j.Result != nil {
		c.Result = append([]byte(nil), j.Result...)
	}
	c.Error = cloneString(j.Error)
	c.UniqueKey = cloneString(j.UniqueKey)
	c.AssetKey = cloneString(j.AssetKey)
	c.WorkerID = cloneString(j.WorkerID)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
