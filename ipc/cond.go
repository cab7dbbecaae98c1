package ipc

import (
	"context"
	"sync/atomic"

	"github.com/WitIOT/tao/clock"
)

// Cond is a process-shared condition variable, always used together with
// a Mutex the caller already holds. Wait atomically releases the mutex and
// parks, then re-acquires it before returning, per spec §4.2.
//
// It is implemented with the classic futex sequence-counter scheme: every
// Signal/Broadcast bumps seq and wakes waiters parked on its old value.
// Because the kernel's futex_wait compares the word atomically at syscall
// entry, a Signal that lands between the waiter's read of seq and the
// actual syscall does not get lost: the syscall simply sees a changed word
// and returns immediately instead of sleeping. Callers must still loop on
// their own predicate, exactly as with a pthread condition variable.
type Cond struct {
	seq atomic.Uint32
}

// Init prepares a freshly zero-filled Cond for use.
func (c *Cond) Init(sharing Sharing) {
	c.seq.Store(0)
}

// Destroy releases any resources held by the condition variable.
func (c *Cond) Destroy() {}

// Signal wakes at most one waiter.
func (c *Cond) Signal() {
	c.seq.Add(1)
	_ = futexWake(addrOf(&c.seq), 1)
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	c.seq.Add(1)
	_ = futexWake(addrOf(&c.seq), int(^uint32(0)>>1))
}

// Wait releases mu, blocks until signaled or ctx is done, then re-acquires
// mu before returning.
func (c *Cond) Wait(ctx context.Context, mu *Mutex) Status {
	return c.WaitUntil(ctx, mu, clock.Forever)
}

// WaitTimeout is Wait bounded by a relative timeout.
func (c *Cond) WaitTimeout(ctx context.Context, mu *Mutex, secs float64) Status {
	return c.WaitUntil(ctx, mu, clock.AfterSeconds(secs))
}

// WaitUntil is Wait bounded by an absolute deadline. It unconditionally
// re-acquires mu before returning, even past deadline or on a
// cancelled ctx: every caller treats a non-OK return as "mu is still
// held, unlock it", so re-locking with the (possibly already-elapsed)
// original deadline would let that unconditional Unlock release a
// lock some other goroutine legitimately holds. The final re-lock
// therefore always waits with clock.Forever, independent of deadline.
func (c *Cond) WaitUntil(ctx context.Context, mu *Mutex, deadline clock.Deadline) Status {
	seq := c.seq.Load()
	mu.Unlock()

	status := waitLoop(ctx, deadline, func(remaining clock.Deadline) Status {
		return c.waitSlice(seq, remaining)
	})

	lockStatus := mu.LockUntil(ctx, clock.Forever)
	if lockStatus != OK {
		return lockStatus
	}
	return status
}

func (c *Cond) waitSlice(seq uint32, deadline clock.Deadline) Status {
	if c.seq.Load() != seq {
		return OK
	}

	remaining := deadline.Remaining()
	slice := remaining
	if slice > maxWaitSlice {
		slice = maxWaitSlice
	}

	if err := futexWait(addrOf(&c.seq), seq, timespecFor(slice)); err != nil {
		if !isRetryable(err) {
			return ERROR
		}
	}

	if c.seq.Load() != seq {
		return OK
	}
	return TIMEOUT
}
