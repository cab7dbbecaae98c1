// Package ipc implements TAO's process-shared synchronization primitives —
// mutex, condition variable, read/write lock, counting semaphore — on top
// of plain words placed directly in shared memory and the Linux futex
// syscall (golang.org/x/sys/unix, the teacher's own low-level dependency).
// Every blocking call comes in try / absolute-deadline / relative-timeout
// forms returning a three-valued Status, per spec §4.2.
package ipc

import (
	"context"

	"github.com/WitIOT/tao/clock"
)

// Status is the three-valued result of every blocking primitive call.
type Status int

const (
	OK Status = iota
	TIMEOUT
	ERROR
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case TIMEOUT:
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// Sharing selects a primitive's attribute at Init time. Both values behave
// identically in this implementation (the futex word is resolved by
// physical backing regardless), but the attribute is kept so that call
// sites document their intent the same way the C original's
// pthread_mutexattr_setpshared does.
type Sharing int

const (
	Private Sharing = iota
	ProcessShared
)

// waitLoop repeatedly performs a bounded-duration attempt (try) until it
// reports non-TIMEOUT, the deadline elapses, or ctx is done. It is the
// shared retry skeleton behind every *Until/*Timeout primitive method:
// futexWait only accepts a relative timeout, so an absolute deadline is
// serviced as a sequence of short relative waits, each re-checking ctx.
func waitLoop(ctx context.Context, deadline clock.Deadline, try func(remaining clock.Deadline) Status) Status {
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ERROR
			default:
			}
		}

		status := try(deadline)
		if status != TIMEOUT {
			return status
		}
		if deadline.Elapsed() {
			return TIMEOUT
		}
	}
}
