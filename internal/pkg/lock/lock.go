// Package lock provides per-owner locking for concurrent ledger operations.
// Ledger mutations against the same inventory must be serialized to prevent
// lost updates from concurrent requests.
package lock

import (
	"context"
	"sync"
	"time"
)

// ownerMutex wraps a mutex with reference counting for reuse.
type ownerMutex struct {
	mu       sync.Mutex
	refCount int
}

// OwnerLock provides per-owner-key locking to prevent race conditions
// during balance-modifying operations. Keys are the composite owner keys
// produced by model.Owner.Key.
type OwnerLock struct {
	locks sync.Map // map[string]*ownerMutex
	pool  sync.Pool
}

// NewOwnerLock creates a new OwnerLock instance.
func NewOwnerLock() *OwnerLock {
	return &OwnerLock{
		pool: sync.Pool{
			New: func() any {
				return &ownerMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for the given owner key.
func (ol *OwnerLock) getLock(key string) *ownerMutex {
	if v, ok := ol.locks.Load(key); ok {
		return v.(*ownerMutex)
	}

	newLock := ol.pool.Get().(*ownerMutex)
	newLock.refCount = 0

	actual, loaded := ol.locks.LoadOrStore(key, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		ol.pool.Put(newLock)
	}
	return actual.(*ownerMutex)
}

// Lock acquires the lock for an owner key. Callers locking more than one
// key must acquire them in a stable order to avoid deadlock.
func (ol *OwnerLock) Lock(key string) {
	lock := ol.getLock(key)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for an owner key.
func (ol *OwnerLock) Unlock(key string) {
	if v, ok := ol.locks.Load(key); ok {
		lock := v.(*ownerMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (ol *OwnerLock) TryLock(key string) bool {
	lock := ol.getLock(key)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock within the timeout.
// Returns false if the timeout elapsed first.
func (ol *OwnerLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	lock := ol.getLock(key)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the lock; release
		// it again once it does.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the owner's lock.
func (ol *OwnerLock) WithLock(key string, fn func() error) error {
	ol.Lock(key)
	defer ol.Unlock(key)
	return fn()
}

// IsLocked checks whether an owner key currently has an active lock.
// Point-in-time check; the answer may change immediately after.
func (ol *OwnerLock) IsLocked(key string) bool {
	if v, ok := ol.locks.Load(key); ok {
		lock := v.(*ownerMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
