package remote

import (
	"github.com/WitIOT/tao/errs"
	"github.com/WitIOT/tao/object"
	"github.com/WitIOT/tao/rwobject"
	"github.com/WitIOT/tao/shm"
)

// SlotStride computes the ring stride (FrameHeaderSize + payloadSize,
// aligned) a family should request from Create for a given per-frame
// payload size.
func SlotStride(payloadSize int) int64 {
	return AlignStride(int64(FrameHeaderSize) + int64(payloadSize))
}

// Create allocates a new remote object: a header of the given total size
// (HeaderSize plus whatever family-specific body the caller's typ embeds
// it in), followed immediately by a ring of nbufs slots of stride bytes
// each. headerTotalSize must be >= HeaderSize and is the offset at which
// the ring begins.
func Create(typ object.Type, owner string, nbufs int, stride int64, headerTotalSize int, perm shm.Perm) (*Object, error) {
	if nbufs < 2 {
		return nil, errs.Record{Func: "remote.Create", Code: errs.BadBuffers, Message: "a remote object requires at least 2 ring slots"}
	}
	if int64(headerTotalSize) < int64(HeaderSize) {
		return nil, errs.Record{Func: "remote.Create", Code: errs.BadArgument, Message: "header size smaller than remote.HeaderSize"}
	}

	offset := int64(headerTotalSize)
	total := int(offset) + nbufs*int(stride)

	base, err := rwobject.Create(typ, total, perm)
	if err != nil {
		return nil, err
	}

	h := HeaderAt(base.Segment.Data)
	h.Nbufs = int64(nbufs)
	h.Offset = offset
	h.Stride = stride
	h.Serial.Store(0)
	h.State.Store(int32(StateInitializing))
	h.Command = int32(CommandNone)
	h.Ncmds.Store(0)
	h.SetOwner(owner)

	return &Object{Segment: base.Segment, header: h}, nil
}

// Attach maps an existing remote object by shmid.
func Attach(shmid int) (*Object, error) {
	base, err := rwobject.Attach(shmid)
	if err != nil {
		return nil, err
	}
	return &Object{Segment: base.Segment, header: HeaderAt(base.Segment.Data)}, nil
}

// Open attaches by shmid, verifying the object's concrete type tag matches
// want exactly (not just the Remote family), since camera, mirror and
// sensor objects are mutually incompatible despite sharing a family.
func Open(shmid int, want object.Type) (*Object, error) {
	base, err := rwobject.Open(shmid, object.FamilyOf(want))
	if err != nil {
		return nil, err
	}
	if object.Type(base.Header.Type) != want {
		_ = base.Detach()
		return nil, errs.Record{Func: "remote.Open", Code: errs.Corrupted, Message: "type tag mismatch within remote family"}
	}
	return &Object{Segment: base.Segment, header: HeaderAt(base.Segment.Data)}, nil
}

// Detach decrements the attach count and destroys the segment on last
// detach.
func (o *Object) Detach() error {
	base := &rwobject.Object{Segment: o.Segment, Header: &o.header.Header}
	return base.Detach()
}
