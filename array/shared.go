package array

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/rwobject"
	"github.com/WitIOT/tao/shm"
)

// Header is the shared array's wire layout: a read/write-locked object
// extended with the element type, dimension table, atomic publication
// serial and the fixed 5-entry timestamp table (spec §3.1).
type Header struct {
	rwobject.Header

	Eltype ElementType
	Ndims  int32
	Dims   Dims

	Serial atomic.Int64
	Times  [MaxTimestamps]clock.Timestamp
}

// HeaderSize is the byte size of Header.
const HeaderSize = unsafe.Sizeof(Header{})

// DataOffset is the byte offset from the start of the segment to the
// first element, rounded up to Alignment (spec §3.1, §6).
const DataOffset = (uintptr(HeaderSize) + Alignment - 1) &^ (Alignment - 1)

// HeaderAt views the first HeaderSize bytes of a mapped segment as a
// Header.
func HeaderAt(b []byte) *Header {
	if len(b) < int(HeaderSize) {
		panic("array: segment too small for a Header")
	}
	return (*Header)(unsafe.Pointer(&b[0]))
}

// Shared is a process's handle to an attached shared array.
type Shared struct {
	Segment *shm.Segment
	Header  *Header
}

// Create allocates a new shared array segment with the given element
// type and shape.
func Create(eltype ElementType, perm shm.Perm, dims ...int64) (*Shared, error) {
	d, err := validateDims(dims)
	if err != nil {
		return nil, err
	}
	nelem := d.NElem(len(dims))
	total := int(DataOffset) + int(nelem)*eltype.Size()

	base, err := rwobject.Create(object.TypeSharedArray, total, perm)
	if err != nil {
		return nil, err
	}

	h := HeaderAt(base.Segment.Data)
	h.Eltype = eltype
	h.Ndims = int32(len(dims))
	h.Dims = d
	h.Serial.Store(0)

	return &Shared{Segment: base.Segment, Header: h}, nil
}

// Attach maps an existing shared array by shmid.
func Attach(shmid int) (*Shared, error) {
	base, err := rwobject.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Shared{Segment: base.Segment, Header: HeaderAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the object is a shared array.
func Open(shmid int) (*Shared, error) {
	base, err := rwobject.Open(shmid, object.FamilyRWLocked)
	if err != nil {
		return nil, err
	}
	if object.Type(base.Header.Type) != object.TypeSharedArray {
		_ = base.Detach()
		return nil, errs.Record{Func: "array.Open", Code: errs.Corrupted, Message: "not a shared array"}
	}
	return &Shared{Segment: base.Segment, Header: HeaderAt(base.Segment.Data)}, nil
}

// Detach decrements the attach count and destroys the segment on last
// detach.
func (s *Shared) Detach() error {
	base := &rwobject.Object{Segment: s.Segment, Header: &s.Header.Header}
	return base.Detach()
}

// NElem returns the total element count.
func (s *Shared) NElem() int64 { return s.Header.Dims.NElem(int(s.Header.Ndims)) }

// Data returns the element storage as a raw byte slice, aliasing the
// segment.
func (s *Shared) Data() []byte {
	n := s.NElem() * int64(s.Header.Eltype.Size())
	return s.Segment.Data[DataOffset : int64(DataOffset)+n]
}

// Serial returns the currently published serial.
func (s *Shared) Serial() int64 { return s.Header.Serial.Load() }

// PublishSerial stores a new serial and wakes anyone waiting on the
// array's condition variable (used by a producer once Data() has been
// filled in and any per-stage timestamp recorded).
func (s *Shared) PublishSerial(serial int64) {
	s.Header.Serial.Store(serial)
	s.Header.Cond.Broadcast()
}

// Timestamp returns entry i (0-based) of the fixed timestamp table.
func (s *Shared) Timestamp(i int) clock.Timestamp { return s.Header.Times[i] }

// SetTimestamp writes entry i of the fixed timestamp table. Callers hold
// the write lock while staging a new frame, so no separate lock is taken
// here.
func (s *Shared) SetTimestamp(i int, t clock.Timestamp) { s.Header.Times[i] = t }

// RLock/RUnlock/WLock/WUnlock expose the embedded rwobject's locking, so
// a shared array can be used on its own (not just nested in a camera's
// ring) exactly as spec §3.1 describes it: "Read/write-locked object
// with ...".

func (s *Shared) RLock(ctx context.Context) ipc.Status {
	return s.Header.Counters.RLockUntil(ctx, &s.Header.Mutex, &s.Header.Cond, clock.Forever)
}

func (s *Shared) RLockTimeout(ctx context.Context, secs float64) ipc.Status {
	return s.Header.Counters.RLockUntil(ctx, &s.Header.Mutex, &s.Header.Cond, clock.AfterSeconds(secs))
}

func (s *Shared) RUnlock() {
	s.Header.Counters.RUnlock(&s.Header.Mutex, &s.Header.Cond)
}

func (s *Shared) WLock(ctx context.Context) ipc.Status {
	return s.Header.Counters.WLockUntil(ctx, &s.Header.Mutex, &s.Header.Cond, clock.Forever)
}

func (s *Shared) WLockTimeout(ctx context.Context, secs float64) ipc.Status {
	return s.Header.Counters.WLockUntil(ctx, &s.Header.Mutex, &s.Header.Cond, clock.AfterSeconds(secs))
}

func (s *Shared) WUnlock() {
	s.Header.Counters.WUnlock(&s.Header.Mutex, &s.Header.Cond)
}
