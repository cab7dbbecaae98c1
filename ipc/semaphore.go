package ipc

import (
	"context"
	"sync/atomic"

	"github.com/WitIOT/tao/clock"
)

// Semaphore is a process-shared counting semaphore, a single 32-bit word
// holding the current count.
type Semaphore struct {
	count atomic.Uint32
}

// Init prepares the semaphore with the given initial count.
func (s *Semaphore) Init(sharing Sharing, initial uint32) {
	s.count.Store(initial)
}

// Destroy releases any resources held by the semaphore.
func (s *Semaphore) Destroy() {}

// TryAcquire decrements the count without blocking, returning TIMEOUT if
// the count is already zero.
func (s *Semaphore) TryAcquire() Status {
	for {
		v := s.count.Load()
		if v == 0 {
			return TIMEOUT
		}
		if s.count.CompareAndSwap(v, v-1) {
			return OK
		}
	}
}

// Acquire blocks until the count is positive or ctx is done, then
// decrements it.
func (s *Semaphore) Acquire(ctx context.Context) Status {
	return s.AcquireUntil(ctx, clock.Forever)
}

// AcquireTimeout is Acquire bounded by a relative timeout.
func (s *Semaphore) AcquireTimeout(ctx context.Context, secs float64) Status {
	return s.AcquireUntil(ctx, clock.AfterSeconds(secs))
}

// AcquireUntil is Acquire bounded by an absolute deadline.
func (s *Semaphore) AcquireUntil(ctx context.Context, deadline clock.Deadline) Status {
	return waitLoop(ctx, deadline, func(remaining clock.Deadline) Status {
		return s.acquireSlice(remaining)
	})
}

func (s *Semaphore) acquireSlice(deadline clock.Deadline) Status {
	if status := s.TryAcquire(); status == OK {
		return OK
	}

	remaining := deadline.Remaining()
	slice := remaining
	if slice > maxWaitSlice {
		slice = maxWaitSlice
	}

	if err := futexWait(addrOf(&s.count), 0, timespecFor(slice)); err != nil {
		if !isRetryable(err) {
			return ERROR
		}
	}
	return TIMEOUT
}

// Release increments the count by n and wakes up to n waiters.
func (s *Semaphore) Release(n uint32) {
	s.count.Add(n)
	_ = futexWake(addrOf(&s.count), int(n))
}
