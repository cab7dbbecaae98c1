package ipc

import (
	"context"
	"sync/atomic"

	"github.com/WitIOT/tao/clock"
)

// RWCounters is the writer-preferring bookkeeping shared by the standalone
// RWLock below and by rwobject.Header, which embeds the same two counters
// directly in its wire layout (spec §3.1) instead of wrapping a whole
// RWLock value, to keep the on-segment field names (users, writers)
// exactly as documented. Both call the same algorithm here.
type RWCounters struct {
	// Users is -1 while a writer holds the lock, >0 while that many
	// readers hold it, 0 when idle.
	Users atomic.Int64
	// Writers counts writers currently blocked waiting to acquire.
	Writers atomic.Int64
}

// RLockUntil acquires a read lock, refusing to proceed while a writer
// holds the lock or any writer is waiting (writer preference).
func (c *RWCounters) RLockUntil(ctx context.Context, mu *Mutex, cond *Cond, deadline clock.Deadline) Status {
	if status := mu.LockUntil(ctx, deadline); status != OK {
		return status
	}

	for c.Users.Load() == -1 || c.Writers.Load() > 0 {
		if status := cond.WaitUntil(ctx, mu, deadline); status != OK {
			mu.Unlock()
			return status
		}
	}

	c.Users.Add(1)
	mu.Unlock()
	return OK
}

// RUnlock releases a read lock previously acquired with RLockUntil.
func (c *RWCounters) RUnlock(mu *Mutex, cond *Cond) {
	mu.Lock(context.Background())
	if c.Users.Add(-1) == 0 {
		cond.Broadcast()
	}
	mu.Unlock()
}

// WLockUntil acquires the write lock once no reader or other writer holds
// it, guaranteeing the writer observes Users == 0 at the moment of
// acquisition (spec invariant 6, §8).
func (c *RWCounters) WLockUntil(ctx context.Context, mu *Mutex, cond *Cond, deadline clock.Deadline) Status {
	if status := mu.LockUntil(ctx, deadline); status != OK {
		return status
	}

	c.Writers.Add(1)
	for c.Users.Load() != 0 {
		if status := cond.WaitUntil(ctx, mu, deadline); status != OK {
			c.Writers.Add(-1)
			mu.Unlock()
			return status
		}
	}
	c.Writers.Add(-1)
	c.Users.Store(-1)
	mu.Unlock()
	return OK
}

// WUnlock releases the write lock previously acquired with WLockUntil.
func (c *RWCounters) WUnlock(mu *Mutex, cond *Cond) {
	mu.Lock(context.Background())
	c.Users.Store(0)
	cond.Broadcast()
	mu.Unlock()
}

// RWLock is a standalone, process-shared read/write lock: a Mutex, a
// Cond, and the RWCounters bookkeeping above. Components that need a
// freestanding rwlock (as opposed to the rwlocked-object ladder in
// package rwobject, which reuses its own header mutex/cond) use this
// directly.
type RWLock struct {
	mu      Mutex
	cond    Cond
	counter RWCounters
}

// Init prepares a freshly zero-filled RWLock for use.
func (l *RWLock) Init(sharing Sharing) {
	l.mu.Init(sharing)
	l.cond.Init(sharing)
	l.counter.Users.Store(0)
	l.counter.Writers.Store(0)
}

// Destroy releases any resources held by the lock.
func (l *RWLock) Destroy() {
	l.mu.Destroy()
	l.cond.Destroy()
}

// RLock acquires a read lock, blocking until ctx is done.
func (l *RWLock) RLock(ctx context.Context) Status {
	return l.counter.RLockUntil(ctx, &l.mu, &l.cond, clock.Forever)
}

// RLockTimeout acquires a read lock within a relative timeout.
func (l *RWLock) RLockTimeout(ctx context.Context, secs float64) Status {
	return l.counter.RLockUntil(ctx, &l.mu, &l.cond, clock.AfterSeconds(secs))
}

// RUnlock releases a read lock.
func (l *RWLock) RUnlock() {
	l.counter.RUnlock(&l.mu, &l.cond)
}

// WLock acquires the write lock, blocking until ctx is done.
func (l *RWLock) WLock(ctx context.Context) Status {
	return l.counter.WLockUntil(ctx, &l.mu, &l.cond, clock.Forever)
}

// WLockTimeout acquires the write lock within a relative timeout.
func (l *RWLock) WLockTimeout(ctx context.Context, secs float64) Status {
	return l.counter.WLockUntil(ctx, &l.mu, &l.cond, clock.AfterSeconds(secs))
}

// WUnlock releases the write lock.
func (l *RWLock) WUnlock() {
	l.counter.WUnlock(&l.mu, &l.cond)
}
