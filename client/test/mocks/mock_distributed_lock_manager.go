package mocks

import (
	"context"
	"time"
)

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager for testing.
type MockDistributedLockManager struct {
	AcquireFunc func(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error)
	RefreshFunc func(ctx context.Context, resourceID, holderID string) (bool, error)
	ReleaseFunc func(ctx context.Context, resourceID, holderID string) error
}

func (m *MockDistributedLockManager) Acquire(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, resourceID, holderID, ttl)
	}
	return true, nil
}

func (m *MockDistributedLockManager) Refresh(ctx context.Context, resourceID, holderID string) (bool, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, resourceID, holderID)
	}
	return true, nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, resourceID, holderID string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, resourceID, holderID)
	}
	return nil
}
