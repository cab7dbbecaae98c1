// Package object implements the shared object base: the reference-counted
// header placed at offset 0 of every shared segment, and the magic-ORed
// type tag that every downcast in the shared→rwlocked→remote→{camera,
// mirror,sensor} ladder is gated on (spec §3.1, §3.2, §9 — "prefer an
// explicit header-plus-variant-specific-body layout with a tag field ...
// do not reproduce virtual-pointer tables").
package object

import (
	"sync/atomic"
	"unsafe"

	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/shm"
)

// Magic is ORed with a family bit-group to form every type tag (spec
// §3.2). Families are 32-apart so that concrete types can be formed by
// plain integer addition of a small offset without touching the magic or
// sibling families.
const Magic uint32 = 0x9BB04E00

// Family identifies the super-family (shared / rwlocked / remote) a type
// tag belongs to, independent of which concrete type within that family.
type Family uint32

const (
	FamilyShared   Family = Family(Magic) + 0*32
	FamilyRWLocked Family = Family(Magic) + 1*32
	FamilyRemote   Family = Family(Magic) + 2*32
)

// Type is a concrete object type tag, always Family+N for some small N.
type Type uint32

const (
	TypeSharedArray  Type = Type(FamilyRWLocked) + 1
	TypeRemoteCamera Type = Type(FamilyRemote) + 2
	TypeRemoteMirror Type = Type(FamilyRemote) + 3
	TypeRemoteSensor Type = Type(FamilyRemote) + 4
)

// familyMask clears the low 5 bits (0..31) that carry a concrete type's
// offset within its family, isolating Magic|family for a safe downcast
// check. It relies on every family constant being an exact multiple of
// 32 and every concrete offset being < 32, per spec §3.2.
const familyMask = ^uint32(0x1F)

// FamilyOf extracts the super-family of a type tag.
func FamilyOf(t Type) Family {
	return Family(uint32(t) & familyMask)
}

// Flag bits for Header.Flags. Persistent suppresses destruction on last
// detach (spec §3.1); the nine permission bits mirror a standard
// owner/group/other rwx layout even though TAO only ever sets read/write
// (spec §3.1: "9 permission bits").
const (
	FlagPersistent = 1 << iota
	FlagOwnerRead
	FlagOwnerWrite
	FlagOwnerExec
	FlagGroupRead
	FlagGroupWrite
	FlagGroupExec
	FlagOtherRead
	FlagOtherWrite
	FlagOtherExec
)

func flagsFromPerm(perm shm.Perm) uint32 {
	flags := uint32(FlagOwnerRead | FlagOwnerWrite)
	if perm.GroupRead {
		flags |= FlagGroupRead
	}
	if perm.GroupWrite {
		flags |= FlagGroupWrite
	}
	if perm.OtherRead {
		flags |= FlagOtherRead
	}
	if perm.OtherWrite {
		flags |= FlagOtherWrite
	}
	if perm.Persistent {
		flags |= FlagPersistent
	}
	return flags
}

// Header sits at offset 0 of every shared segment. Fields after Cond are
// immutable after creation and readable without locking, except for the
// explicitly atomic Nrefs, which every attach/detach mutates with a
// read-modify-write (spec §3.1, §3.4, §5 "reference counting").
type Header struct {
	Mutex ipc.Mutex
	Cond  ipc.Cond
	Nrefs atomic.Int64
	Size  int64
	Shmid int32
	Flags uint32
	Type  uint32
}

// HeaderSize is the size in bytes occupied by Header at the start of every
// segment; family-specific bodies begin immediately after it (subject to
// their own alignment requirements, e.g. array.go's 64-byte rule).
const HeaderSize = unsafe.Sizeof(Header{})

// HeaderAt views the first HeaderSize bytes of a mapped segment as a
// Header. The returned pointer aliases b; all processes attached to the
// same segment observe the same memory through their own HeaderAt call.
func HeaderAt(b []byte) *Header {
	if len(b) < int(HeaderSize) {
		panic("object: segment too small for a Header")
	}
	return (*Header)(unsafe.Pointer(&b[0]))
}

// Object is a process's handle to an attached shared object: the mapped
// segment plus a typed view of its header.
type Object struct {
	Segment *shm.Segment
	Header  *Header
}

// Create allocates a new segment of the given total size, writes a fresh
// Header at offset 0 with Nrefs=1, and returns it attached. Callers are
// responsible for initializing any family-specific body bytes that follow
// the header.
func Create(typ Type, size int, perm shm.Perm) (*Object, error) {
	seg, err := shm.Create(size, perm)
	if err != nil {
		return nil, err
	}

	h := HeaderAt(seg.Data)
	h.Mutex.Init(ipc.ProcessShared)
	h.Cond.Init(ipc.ProcessShared)
	h.Nrefs.Store(1)
	h.Size = int64(size)
	h.Shmid = int32(seg.Shmid)
	h.Flags = flagsFromPerm(perm)
	h.Type = uint32(typ)

	return &Object{Segment: seg, Header: h}, nil
}

// Attach maps an existing segment by shmid and increments Nrefs.
func Attach(shmid int) (*Object, error) {
	seg, err := shm.Attach(shmid)
	if err != nil {
		return nil, err
	}
	h := HeaderAt(seg.Data)
	h.Nrefs.Add(1)
	return &Object{Segment: seg, Header: h}, nil
}

// Open attaches by shmid and verifies the object's family, returning
// errs.Corrupted if the tag does not match — the "safe-downcast" gate
// spec §9 requires instead of a vtable.
func Open(shmid int, want Family) (*Object, error) {
	obj, err := Attach(shmid)
	if err != nil {
		return nil, err
	}
	if FamilyOf(Type(obj.Header.Type)) != want {
		_ = obj.Detach()
		return nil, errs.Record{Func: "object.Open", Code: errs.Corrupted, Message: "type tag family mismatch"}
	}
	return obj, nil
}

// Detach decrements Nrefs and, if it reaches zero without the persistent
// flag set, destroys the backing segment (spec §3.4). The detaching
// process that observes the post-decrement 0 is the one that performs
// destruction (spec §5).
func (o *Object) Detach() error {
	remaining := o.Header.Nrefs.Add(-1)
	persistent := o.Header.Flags&FlagPersistent != 0
	shmid := int(o.Header.Shmid)

	if err := o.Segment.Detach(); err != nil {
		return err
	}

	if remaining <= 0 && !persistent {
		return shm.Destroy(shmid)
	}
	return nil
}

// Nrefs returns the current attach count.
func (o *Object) Nrefs() int64 {
	return o.Header.Nrefs.Load()
}

// Persistent reports whether the object survives its last detach.
func (o *Object) Persistent() bool {
	return o.Header.Flags&FlagPersistent != 0
}
