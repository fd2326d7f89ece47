package lock

import (
	"context"
	"time"
)

// DistributedLockManager grants one time-bounded lease per resource. A
// holder keeps its lease by calling Refresh; one that goes quiet loses it
// once the ttl elapses.
type DistributedLockManager interface {
	// Acquire returns true when no live lease exists or holderID already
	// holds it, in which case the lease is extended by ttl.
	Acquire(ctx context.Context, resourceID, holderID string, ttl time.Duration) (bool, error)

	// Refresh extends the lease by the ttl given at acquisition, only for the
	// current holder of a live lease.
	Refresh(ctx context.Context, resourceID, holderID string) (bool, error)

	// Release clears the lease if holderID owns it and is a no-op otherwise.
	Release(ctx context.Context, resourceID, holderID string) error
}
