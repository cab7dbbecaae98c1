package ipc

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex(2) op codes. golang.org/x/sys/unix exposes SYS_FUTEX (the
// teacher's own golang.org/x/sys dependency) but, unlike the SysV shared
// memory bindings used in package shm, does not wrap the futex call or its
// op-code constants, so they are reproduced here verbatim from the kernel
// ABI (include/uapi/linux/futex.h) — there is no third-party Go module in
// the retrieved corpus that wraps a process-shared futex.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWait blocks while *addr == val, waking when another thread/process
// calls futexWake on the same address, or when timeout elapses (nil means
// wait indefinitely). It deliberately omits FUTEX_PRIVATE_FLAG: this word
// may be shared between unrelated processes attached to the same System V
// segment, so the kernel must resolve the futex by physical backing, not
// by virtual address within one process.
func futexWait(addr *uint32, val uint32, timeout *unix.Timespec) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp),
		uintptr(val),
		uintptr(unsafe.Pointer(timeout)),
		0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWake wakes up to n waiters blocked on addr.
func futexWake(addr *uint32, n int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// addrOf returns the futex word address backing an atomic.Uint32. Both
// share the same memory layout (a plain uint32), which sync/atomic
// guarantees for its Uint32 type.
func addrOf(w *atomic.Uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(w))
}

// timespecFor converts a duration into a *unix.Timespec suitable for
// futexWait's relative timeout, or nil for "no timeout" (d < 0).
func timespecFor(d time.Duration) *unix.Timespec {
	if d < 0 {
		return nil
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return &ts
}

// maxWaitSlice bounds how long a single futexWait call blocks so that
// deadline and context-cancellation checks in the caller's retry loop stay
// responsive even under an effectively-infinite deadline.
const maxWaitSlice = 200 * time.Millisecond
