// Package rwobject implements the read/write-locked object: a shared
// object header extended with the writer-preferring users/writers
// bookkeeping of spec §3.1, §5, reusing the header's own mutex and
// condition variable rather than adding a second lock.
package rwobject

import (
	"context"
	"unsafe"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/shm"
)

// Header is a shared object header extended with RWCounters. Family-
// specific bodies (remote.Header, and beyond it camera/mirror/sensor)
// embed this, not object.Header directly, so that every member of the
// ladder gets read/write locking for free.
type Header struct {
	object.Header
	Counters ipc.RWCounters
}

// HeaderSize is the byte size of Header, the offset family bodies that
// embed it must add their own fields after.
const HeaderSize = unsafe.Sizeof(Header{})

// HeaderAt views the first HeaderSize bytes of a mapped segment as a
// Header.
func HeaderAt(b []byte) *Header {
	if len(b) < int(HeaderSize) {
		panic("rwobject: segment too small for a Header")
	}
	return (*Header)(unsafe.Pointer(&b[0]))
}

// Object is a process's handle to an attached read/write-locked object.
type Object struct {
	Segment *shm.Segment
	Header  *Header
}

// Create allocates a new segment and initializes a fresh rwlocked Header
// at offset 0, with Users and Writers both zero (idle).
func Create(typ object.Type, size int, perm shm.Perm) (*Object, error) {
	base, err := object.Create(typ, size, perm)
	if err != nil {
		return nil, err
	}

	h := HeaderAt(base.Segment.Data)
	h.Counters.Users.Store(0)
	h.Counters.Writers.Store(0)

	return &Object{Segment: base.Segment, Header: h}, nil
}

// Attach maps an existing rwlocked object by shmid.
func Attach(shmid int) (*Object, error) {
	base, err := object.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Object{Segment: base.Segment, Header: HeaderAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the family matches want (or a family
// that embeds rwobject.Header, e.g. FamilyRemote).
func Open(shmid int, want object.Family) (*Object, error) {
	base, err := object.Open(shmid, want)
	if err != nil {
		return nil, err
	}
	return &Object{Segment: base.Segment, Header: HeaderAt(base.Segment.Data)}, nil
}

// Detach decrements the attach count and destroys the segment on last
// detach, exactly as object.Object.Detach.
func (o *Object) Detach() error {
	base := &object.Object{Segment: o.Segment, Header: &o.Header.Header}
	return base.Detach()
}

// RLock acquires a read lock, blocking until ctx is done.
func (o *Object) RLock(ctx context.Context) ipc.Status {
	return o.Header.Counters.RLockUntil(ctx, &o.Header.Mutex, &o.Header.Cond, clock.Forever)
}

// RLockTimeout acquires a read lock within a relative timeout.
func (o *Object) RLockTimeout(ctx context.Context, secs float64) ipc.Status {
	return o.Header.Counters.RLockUntil(ctx, &o.Header.Mutex, &o.Header.Cond, clock.AfterSeconds(secs))
}

// RUnlock releases a read lock.
func (o *Object) RUnlock() {
	o.Header.Counters.RUnlock(&o.Header.Mutex, &o.Header.Cond)
}

// WLock acquires the write lock, blocking until ctx is done.
func (o *Object) WLock(ctx context.Context) ipc.Status {
	return o.Header.Counters.WLockUntil(ctx, &o.Header.Mutex, &o.Header.Cond, clock.Forever)
}

// WLockTimeout acquires the write lock within a relative timeout.
func (o *Object) WLockTimeout(ctx context.Context, secs float64) ipc.Status {
	return o.Header.Counters.WLockUntil(ctx, &o.Header.Mutex, &o.Header.Cond, clock.AfterSeconds(secs))
}

// WUnlock releases the write lock.
func (o *Object) WUnlock() {
	o.Header.Counters.WUnlock(&o.Header.Mutex, &o.Header.Cond)
}
