package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type runLease struct {
	until time.Time
	token uint64
}

// MemoryRunLocker is a process-local RunLocker. Leases expire after their TTL
// so a crashed run cannot block later ones forever.
type MemoryRunLocker struct {
	mu     sync.Mutex
	leases map[string]runLease
	next   uint64
	nowFn  func() time.Time
}

func NewMemoryRunLocker() *MemoryRunLocker {
	return &MemoryRunLocker{
		leases: make(map[string]runLease),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryRunLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: run locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = DefaultReconcileLockTTLSeconds * time.Second
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[key]; ok && now.Before(lease.until) {
		return nil, fmt.Errorf("core: reconcile lock already held for %q", key)
	}
	l.next++
	l.leases[key] = runLease{until: now.Add(ttl), token: l.next}
	return &memoryRunLockHandle{locker: l, key: key, token: l.next}, nil
}

type memoryRunLockHandle struct {
	locker *MemoryRunLocker
	key    string
	token  uint64
	once   sync.Once
}

// Unlock releases the lease unless it already expired and was taken over.
func (h *memoryRunLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		if lease, ok := h.locker.leases[h.key]; ok && lease.token == h.token {
			delete(h.locker.leases, h.key)
		}
	})
	return nil
}
