package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/genjob/types"
)

// MockJobStore is a mock implementation of store.JobStore for testing.
type MockJobStore struct {
	InsertFunc        func(ctx context.Context, job *types.Job) error
	FindByIDFunc      func(ctx context.Context, id string) (*types.Job, error)
	ClaimFunc         func(ctx context.Context, id, workerID string, ceiling int) (*types.Job, error)
	UpdateStateFunc   func(ctx context.Context, u types.StateUpdate) (bool, error)
	CancelFunc        func(ctx context.Context, id string) (*types.Job, error)
	MaxRetryCountFunc func(ctx context.Context, idPrefix string) (int, error)
	ListByProjectFunc func(ctx context.Context, projectID string) ([]*types.Job, error)
	HeartbeatFunc     func(ctx context.Context, id string, attempt int) (bool, error)
	FailStaleFunc     func(ctx context.Context, before time.Time, errText string) ([]*types.Job, error)
}

func (m *MockJobStore) Insert(ctx context.Context, job *types.Job) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, job)
	}
	return nil
}

func (m *MockJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockJobStore) Claim(ctx context.Context, id, workerID string, ceiling int) (*types.Job, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, id, workerID, ceiling)
	}
	return nil, nil
}

func (m *MockJobStore) UpdateState(ctx context.Context, u types.StateUpdate) (bool, error) {
	if m.UpdateStateFunc != nil {
		return m.UpdateStateFunc(ctx, u)
	}
	return false, nil
}

func (m *MockJobStore) Cancel(ctx context.Context, id string) (*types.Job, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockJobStore) MaxRetryCount(ctx context.Context, idPrefix string) (int, error) {
	if m.MaxRetryCountFunc != nil {
		return m.MaxRetryCountFunc(ctx, idPrefix)
	}
	return 0, nil
}

func (m *MockJobStore) ListByProject(ctx context.Context, projectID string) ([]*types.Job, error) {
	if m.ListByProjectFunc != nil {
		return m.ListByProjectFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *MockJobStore) Heartbeat(ctx context.Context, id string, attempt int) (bool, error) {
	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, id, attempt)
	}
	return false, nil
}

func (m *MockJobStore) FailStale(ctx context.Context, before time.Time, errText string) ([]*types.Job, error) {
	if m.FailStaleFunc != nil {
		return m.FailStaleFunc(ctx, before, errText)
	}
	return nil, nil
}
