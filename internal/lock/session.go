package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/genjob/custom_errors"
)

const releaseTimeout = 5 * time.Second

// Hold runs fn while holding the lease on resourceID. The lease is refreshed
// every ttl/3; if it is lost, fn's context is cancelled and Hold returns
// ErrLeaseLost. The lease is released when fn returns.
func Hold(ctx context.Context, mgr DistributedLockManager, resourceID, holderID string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ok, err := mgr.Acquire(ctx, resourceID, holderID, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lock %s: %w", resourceID, custom_errors.ErrLockHeld)
	}

	sessionCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopped := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		heartbeat(sessionCtx, mgr, resourceID, holderID, ttl, stopped, cancel)
	}()

	fnErr := fn(sessionCtx)
	close(stopped)
	<-heartbeatDone

	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer releaseCancel()
	releaseErr := mgr.Release(releaseCtx, resourceID, holderID)

	if cause := context.Cause(sessionCtx); errors.Is(cause, custom_errors.ErrLeaseLost) {
		return errors.Join(cause, fnErr)
	}
	return errors.Join(fnErr, releaseErr)
}

func heartbeat(ctx context.Context, mgr DistributedLockManager, resourceID, holderID string, ttl time.Duration, stopped <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-stopped:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := mgr.Refresh(ctx, resourceID, holderID)
		switch {
		case err == nil && ok:
			lastRenewed = time.Now()
		case err == nil && !ok:
			cancel(fmt.Errorf("lock %s: %w", resourceID, custom_errors.ErrLeaseLost))
			return
		case time.Since(lastRenewed) >= ttl:
			// refresh errors past the ttl mean someone else may hold it by now
			cancel(fmt.Errorf("lock %s: %w: %v", resourceID, custom_errors.ErrLeaseLost, err))
			return
		}
	}
}
