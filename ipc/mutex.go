package ipc

import (
	"context"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/WitIOT/tao/clock"
)

// Mutex states, following the classic futex-based mutex algorithm
// (Drepper, "Futexes Are Tricky"): 0 unlocked, 1 locked with no waiters,
// 2 locked with at least one waiter parked in the kernel.
const (
	mutexUnlocked = 0
	mutexLocked   = 1
	mutexWaited   = 2
)

// Mutex is a process-shared mutual-exclusion lock. It is a single 32-bit
// word and is safe to place at any 4-byte-aligned offset inside a mapped
// shared-memory segment.
type Mutex struct {
	state atomic.Uint32
}

// Init prepares a freshly zero-filled Mutex for use. Sharing is accepted
// for documentation parity with the pthread attribute it mirrors; both
// values behave identically here (see Sharing).
func (m *Mutex) Init(sharing Sharing) {
	m.state.Store(mutexUnlocked)
}

// Destroy releases any resources held by the mutex. Futex-based mutexes
// hold none; Destroy exists to mirror the primitive contract.
func (m *Mutex) Destroy() {}

// TryLock attempts to acquire the mutex without blocking, returning
// TIMEOUT on contention.
func (m *Mutex) TryLock() Status {
	if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
		return OK
	}
	return TIMEOUT
}

// Lock blocks until the mutex is acquired or ctx is done.
func (m *Mutex) Lock(ctx context.Context) Status {
	return m.LockUntil(ctx, clock.Forever)
}

// LockTimeout blocks for at most secs seconds.
func (m *Mutex) LockTimeout(ctx context.Context, secs float64) Status {
	return m.LockUntil(ctx, clock.AfterSeconds(secs))
}

// LockUntil blocks until the mutex is acquired, the absolute deadline
// elapses, or ctx is done.
func (m *Mutex) LockUntil(ctx context.Context, deadline clock.Deadline) Status {
	return waitLoop(ctx, deadline, func(remaining clock.Deadline) Status {
		return m.tryLockSlice(remaining)
	})
}

// tryLockSlice performs one bounded attempt: if the lock is free it is
// taken immediately; if held without waiters, the state is promoted to
// "has waiters" so Unlock knows to wake someone; either way, on
// contention, it parks on the futex word for at most maxWaitSlice or the
// time left until deadline, whichever is smaller, then reports TIMEOUT so
// the caller's waitLoop re-evaluates the deadline and tries again.
func (m *Mutex) tryLockSlice(deadline clock.Deadline) Status {
	current := m.state.Load()
	for current == mutexUnlocked {
		if m.state.CompareAndSwap(mutexUnlocked, mutexLocked) {
			return OK
		}
		current = m.state.Load()
	}

	if current == mutexLocked {
		m.state.CompareAndSwap(mutexLocked, mutexWaited)
	}

	remaining := deadline.Remaining()
	slice := remaining
	if slice > maxWaitSlice {
		slice = maxWaitSlice
	}

	if err := futexWait(addrOf(&m.state), mutexWaited, timespecFor(slice)); err != nil {
		if !isRetryable(err) {
			return ERROR
		}
	}
	return TIMEOUT
}

// Unlock releases the mutex, waking one waiter if any were parked.
func (m *Mutex) Unlock() {
	old := m.state.Swap(mutexUnlocked)
	if old == mutexWaited {
		_ = futexWake(addrOf(&m.state), 1)
	}
}

// isRetryable reports whether a futex syscall error just means "the
// condition changed before we blocked" or "our timeout slice elapsed" —
// both are expected outcomes of a bounded wait, not failures.
func isRetryable(err error) bool {
	errno, ok := err.(unix.Errno)
	if !ok {
		return false
	}
	return errno == unix.EAGAIN || errno == unix.ETIMEDOUT || errno == unix.EINTR
}
