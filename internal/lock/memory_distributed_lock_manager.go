package lock

import (
	"context"
	"sync"
	"time"
)

type memoryLease struct {
	holder string
	ttl    time.Duration
	expiry time.Time
}

// MemoryDistributedLockManager is a single-process lease table.
type MemoryDistributedLockManager struct {
	mu     sync.Mutex
	leases map[string]*memoryLease
	now    func() time.Time
}

var _ DistributedLockManager = (*MemoryDistributedLockManager)(nil)

func NewMemoryDistributedLockManager() *MemoryDistributedLockManager {
	return &MemoryDistributedLockManager{leases: make(map[string]*memoryLease), now: time.Now}
}

func (l *MemoryDistributedLockManager) Acquire(_ context.Context, resourceID, holderID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[resourceID]; ok && cur.holder != holderID && now.Before(cur.expiry) {
		return false, nil
	}
	l.leases[resourceID] = &memoryLease{holder: holderID, ttl: ttl, expiry: now.Add(ttl)}
	return true, nil
}

func (l *MemoryDistributedLockManager) Refresh(_ context.Context, resourceID, holderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cur, ok := l.leases[resourceID]
	if !ok || cur.holder != holderID || now.After(cur.expiry) {
		return false, nil
	}
	cur.expiry = now.Add(cur.ttl)
	return true, nil
}

func (l *MemoryDistributedLockManager) Release(_ context.Context, resourceID, holderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[resourceID]; ok && cur.holder == holderID {
		delete(l.leases, resourceID)
	}
	return nil
}
