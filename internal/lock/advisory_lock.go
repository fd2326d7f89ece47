package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// AdvisoryLocker wraps PostgreSQL session advisory locks. Session locks
// belong to one connection, so each held lock pins a connection until it is
// released.
type AdvisoryLocker struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int64]*sql.Conn
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{
		db:    db,
		conns: make(map[int64]*sql.Conn),
	}
}

// Acquire blocks until the lock is granted or ctx is done.
func (l *AdvisoryLocker) Acquire(ctx context.Context, lockID int64) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.mu.Lock()
	l.conns[lockID] = conn
	l.mu.Unlock()
	return nil
}

func (l *AdvisoryLocker) Release(ctx context.Context, lockID int64) error {
	l.mu.Lock()
	conn, ok := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()

	if !ok {
		return nil
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
